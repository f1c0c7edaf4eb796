package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/otp/domain"
)

const pendingColumns = `id, email, code_hash, token_hash, type, device_id, created_at`

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns a pending-verification repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// Replace supersedes any previous row for the same email and type with p. The row must have ID set.
func (r *PostgresRepository) Replace(ctx context.Context, p *domain.Pending) error {
	return db.WithTx(ctx, r.conn, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM otp_verification_pending WHERE email = $1 AND type = $2`,
			p.Email, string(p.Type)); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO otp_verification_pending (`+pendingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.Email, p.CodeHash, p.TokenHash, string(p.Type),
			sql.NullString{String: p.DeviceID, Valid: p.DeviceID != ""}, p.CreatedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

// Find returns the pending row for email and type, or nil if not found. When deviceID is
// non-empty the row must be bound to that device.
func (r *PostgresRepository) Find(ctx context.Context, email string, t domain.Type, deviceID string) (*domain.Pending, error) {
	if deviceID == "" {
		return r.getOne(ctx,
			`SELECT `+pendingColumns+` FROM otp_verification_pending WHERE email = $1 AND type = $2`,
			email, string(t))
	}
	return r.getOne(ctx,
		`SELECT `+pendingColumns+` FROM otp_verification_pending WHERE email = $1 AND type = $2 AND device_id = $3`,
		email, string(t), deviceID)
}

// FindByTokenHash returns the pending row whose token hash matches, or nil if not found.
func (r *PostgresRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Pending, error) {
	return r.getOne(ctx,
		`SELECT `+pendingColumns+` FROM otp_verification_pending WHERE token_hash = $1`, tokenHash)
}

// Delete removes the row with id. Deleting a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM otp_verification_pending WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Pending, error) {
	var (
		p        domain.Pending
		typ      string
		deviceID sql.NullString
	)
	err := r.conn.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.Email, &p.CodeHash, &p.TokenHash, &typ, &deviceID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.Type = domain.Type(typ)
	p.DeviceID = deviceID.String
	return &p, nil
}
