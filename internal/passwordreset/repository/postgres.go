package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/passwordreset/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a reset request repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Upsert stores the request, replacing any earlier one for the same email.
func (r *PostgresRepository) Upsert(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_change_requests (email, token_hash, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO UPDATE SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at`,
		req.Email, req.TokenHash, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the request matching both token hash and email, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, tokenHash, email string) (*domain.Request, error) {
	var req domain.Request
	err := r.db.QueryRowContext(ctx,
		`SELECT email, token_hash, created_at FROM password_change_requests WHERE token_hash = $1 AND email = $2`,
		tokenHash, email).Scan(&req.Email, &req.TokenHash, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &req, nil
}

// Delete removes the request for email.
func (r *PostgresRepository) Delete(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM password_change_requests WHERE email = $1`, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
