package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/organization/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
}

// GetOrganizationByName returns the organization with the exact name, or nil if not found.
func (r *PostgresRepository) GetOrganizationByName(ctx context.Context, name string) (*domain.Org, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE name = $1`, name)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Org, error) {
	var o domain.Org
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &o, nil
}

// CreateOrganization persists the organization to the database. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
