// Package repository tracks which accounts hold WebAuthn credentials. Only existence and
// bulk deletion are modelled; the WebAuthn ceremony itself lives elsewhere.
package repository

import "context"

// Repository defines persistence for passkey credentials.
type Repository interface {
	ExistsForAccount(ctx context.Context, accountID string) (bool, error)
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}
