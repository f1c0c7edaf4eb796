package repository

import (
	"context"

	"consultancy-auth/backend/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	GetOrganizationByName(ctx context.Context, name string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
}
