package repository

import (
	"context"
	"time"

	"consultancy-auth/backend/internal/account/domain"
)

// Repository defines persistence for accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, a *domain.Account) error
	UpdatePassword(ctx context.Context, id, hash string, history []string, at time.Time) error
	MarkVerified(ctx context.Context, id, hash string, history []string, at time.Time) error
	SetTwoFactor(ctx context.Context, id string, enabledAt *time.Time) error
	UpdateEmail(ctx context.Context, id, email string) error
}
