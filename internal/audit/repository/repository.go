package repository

import (
	"context"

	"consultancy-auth/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AuditLog, error)
}
