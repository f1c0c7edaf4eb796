package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/device/domain"
)

const deviceColumns = `id, account_id, device_id, user_agent, is_trusted, first_login, last_login, last_activity_record`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Get returns the device row for the account and fingerprint, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, accountID, deviceID string) (*domain.LoginDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM login_devices WHERE account_id = $1 AND device_id = $2`,
		accountID, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// ListByAccount returns the account's devices, most recent login first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.LoginDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM login_devices WHERE account_id = $1 ORDER BY last_login DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*domain.LoginDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// ListDeviceIDsByEmail returns the fingerprints of every device known for the account with email.
func (r *PostgresRepository) ListDeviceIDsByEmail(ctx context.Context, email string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.device_id FROM login_devices d
		   JOIN accounts a ON a.id = d.account_id
		  WHERE lower(a.email) = lower($1)`, email)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

// Upsert persists d. The device must have ID set; on conflict the existing row keeps its id and first_login.
func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.LoginDevice) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_devices (`+deviceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (account_id, device_id) DO UPDATE
		    SET user_agent = EXCLUDED.user_agent,
		        is_trusted = EXCLUDED.is_trusted,
		        last_login = EXCLUDED.last_login,
		        last_activity_record = EXCLUDED.last_activity_record`,
		d.ID, d.AccountID, d.DeviceID, d.UserAgent, d.IsTrusted, d.FirstLogin, d.LastLogin, d.LastActivityRecord)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// TouchLogin sets last_login and last_activity_record for the row id.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE login_devices SET last_login = $2, last_activity_record = $2 WHERE id = $1`, id, at)
}

// TouchActivity sets last_activity_record for the row id.
func (r *PostgresRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE login_devices SET last_activity_record = $2 WHERE id = $1`, id, at)
}

// SetTrusted sets the trusted flag for the row id.
func (r *PostgresRepository) SetTrusted(ctx context.Context, id string, trusted bool) error {
	return r.exec(ctx, `UPDATE login_devices SET is_trusted = $2 WHERE id = $1`, id, trusted)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.LoginDevice, error) {
	var d domain.LoginDevice
	err := row.Scan(&d.ID, &d.AccountID, &d.DeviceID, &d.UserAgent, &d.IsTrusted,
		&d.FirstLogin, &d.LastLogin, &d.LastActivityRecord)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
