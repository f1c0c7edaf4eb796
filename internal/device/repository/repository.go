package repository

import (
	"context"
	"time"

	"consultancy-auth/backend/internal/device/domain"
)

// Repository defines persistence for login devices.
type Repository interface {
	Get(ctx context.Context, accountID, deviceID string) (*domain.LoginDevice, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.LoginDevice, error)
	ListDeviceIDsByEmail(ctx context.Context, email string) ([]string, error)
	// Upsert inserts the device or, when the (account, device) pair exists, refreshes trust,
	// user agent and login timestamps.
	Upsert(ctx context.Context, d *domain.LoginDevice) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	SetTrusted(ctx context.Context, id string, trusted bool) error
}
