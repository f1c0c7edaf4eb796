package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consultancy-auth/backend/internal/account/domain"
	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/security"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrPlaintextPassword is returned when a write is attempted with a value that is not a bcrypt hash.
	ErrPlaintextPassword = errors.New("refusing to store a password that is not hashed")
	// ErrEmailTaken is returned when the unique email index rejects a write.
	ErrEmailTaken = errors.New("email already in use")
)

const uniqueViolation = "23505"

const selectAccount = `SELECT a.id, a.email, a.password, a.role, a.first_name, a.last_name, a.profile_image,
       a.organization_id, COALESCE(o.name, ''), a.verified_at, a.two_fa_enabled_at, a.prev_passwords,
       a.password_updated_at, a.created_at, a.updated_at
  FROM accounts a
  LEFT JOIN organizations o ON o.id = a.organization_id`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE a.id = $1`, id)
}

// GetByEmail returns the account with the given email (case-insensitive), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE lower(a.email) = lower($1)`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// ExistsByEmail reports whether any account uses email.
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Create persists the account. The account must have ID set. A non-empty PasswordHash must already be hashed.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	if a.PasswordHash != "" && !security.IsHash(a.PasswordHash) {
		return ErrPlaintextPassword
	}
	history, err := encodeHistory(a.PrevPasswords)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password, role, first_name, last_name, profile_image,
		                       organization_id, verified_at, two_fa_enabled_at, prev_passwords,
		                       password_updated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.Email, nullString(a.PasswordHash), string(a.Role), a.FirstName, a.LastName, a.ProfileImage,
		nullString(a.OrganizationID), a.VerifiedAt, a.TwoFaEnabledAt, history,
		a.PasswordUpdatedAt, a.CreatedAt, a.UpdatedAt,
	)
	return mapWriteError(err)
}

// UpdatePassword stores a new password hash together with the already trimmed history.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash string, history []string, at time.Time) error {
	return r.setPassword(ctx,
		`UPDATE accounts SET password = $2, prev_passwords = $3, password_updated_at = $4, updated_at = $4 WHERE id = $1`,
		id, hash, history, at)
}

// MarkVerified activates the account: sets verified_at, the initial password and its history.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id, hash string, history []string, at time.Time) error {
	return r.setPassword(ctx,
		`UPDATE accounts SET password = $2, prev_passwords = $3, password_updated_at = $4, verified_at = $4, updated_at = $4 WHERE id = $1`,
		id, hash, history, at)
}

func (r *PostgresRepository) setPassword(ctx context.Context, query, id, hash string, history []string, at time.Time) error {
	if !security.IsHash(hash) {
		return ErrPlaintextPassword
	}
	encoded, err := encodeHistory(history)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, id, hash, encoded, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetTwoFactor sets two_fa_enabled_at; nil disables 2FA.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, enabledAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET two_fa_enabled_at = $2, updated_at = now() WHERE id = $1`, id, enabledAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateEmail changes the login email. The new address is not re-verified.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, id, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $2, updated_at = now() WHERE id = $1`, id, email)
	return mapWriteError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                             domain.Account
		password, orgID, profileImage sql.NullString
		verifiedAt, twoFa, pwUpdated  sql.NullTime
		role                          string
		history                       []byte
	)
	err := row.Scan(&a.ID, &a.Email, &password, &role, &a.FirstName, &a.LastName, &profileImage,
		&orgID, &a.OrganizationName, &verifiedAt, &twoFa, &history, &pwUpdated, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.PasswordHash = password.String
	a.Role = domain.Role(role)
	a.OrganizationID = orgID.String
	if profileImage.Valid {
		a.ProfileImage = &profileImage.String
	}
	if verifiedAt.Valid {
		a.VerifiedAt = &verifiedAt.Time
	}
	if twoFa.Valid {
		a.TwoFaEnabledAt = &twoFa.Time
	}
	if pwUpdated.Valid {
		a.PasswordUpdatedAt = &pwUpdated.Time
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.PrevPasswords); err != nil {
			return nil, fmt.Errorf("decode prev_passwords: %w", err)
		}
	}
	return &a, nil
}

func encodeHistory(history []string) ([]byte, error) {
	if history == nil {
		history = []string{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode prev_passwords: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return fmt.Errorf("db error: %w", err)
}
