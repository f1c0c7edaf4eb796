package repository

import (
	"context"

	"consultancy-auth/backend/internal/otp/domain"
)

// Repository defines persistence for pending verifications.
type Repository interface {
	// Replace deletes any row for (p.Email, p.Type) and inserts p, atomically.
	Replace(ctx context.Context, p *domain.Pending) error
	// Find returns the row for (email, type). A non-empty deviceID must also match.
	Find(ctx context.Context, email string, t domain.Type, deviceID string) (*domain.Pending, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Pending, error)
	Delete(ctx context.Context, id string) error
}
