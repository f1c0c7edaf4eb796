package repository

import (
	"context"

	"consultancy-auth/backend/internal/passwordreset/domain"
)

// Repository defines persistence for password reset requests.
type Repository interface {
	Upsert(ctx context.Context, r *domain.Request) error
	Get(ctx context.Context, tokenHash, email string) (*domain.Request, error)
	Delete(ctx context.Context, email string) error
}
