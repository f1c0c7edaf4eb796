package session

import (
	"context"
	"time"

	"consultancy-auth/backend/internal/session/domain"
)

const keyPrefix = "session:"

// DeviceLister enumerates the device fingerprints known for an account.
type DeviceLister interface {
	ListDeviceIDsByEmail(ctx context.Context, email string) ([]string, error)
}

// RefreshStore maps (email, deviceId) to the device's current refresh token. Keys are
// partitioned per device so concurrent logins from different devices never contend;
// the same device races last-write-wins.
type RefreshStore struct {
	kv      Store[domain.RefreshSession]
	devices DeviceLister
	ttl     time.Duration
}

// NewRefreshStore returns a RefreshStore whose entries live for ttl.
func NewRefreshStore(kv Store[domain.RefreshSession], devices DeviceLister, ttl time.Duration) *RefreshStore {
	return &RefreshStore{kv: kv, devices: devices, ttl: ttl}
}

// Key returns the cache key for the device session.
func Key(email, deviceID string) string {
	return keyPrefix + email + ":" + deviceID
}

// Get returns the device's session, or nil when none is live.
func (s *RefreshStore) Get(ctx context.Context, email, deviceID string) (*domain.RefreshSession, error) {
	v, ok, err := s.kv.Get(ctx, Key(email, deviceID))
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Set stores token as the device's current refresh token, overwriting any previous one.
func (s *RefreshStore) Set(ctx context.Context, email, deviceID, token string) error {
	return s.kv.Set(ctx, Key(email, deviceID), domain.RefreshSession{DeviceID: deviceID, RefreshToken: token}, s.ttl)
}

// Remove deletes the device's session.
func (s *RefreshStore) Remove(ctx context.Context, email, deviceID string) error {
	return s.kv.Delete(ctx, Key(email, deviceID))
}

// RemoveAll deletes the sessions of every device known for the account.
func (s *RefreshStore) RemoveAll(ctx context.Context, email string) error {
	keys, err := s.keys(ctx, email)
	if err != nil {
		return err
	}
	return s.kv.Delete(ctx, keys...)
}

// GetAll returns the live sessions across the account's known devices.
func (s *RefreshStore) GetAll(ctx context.Context, email string) ([]domain.RefreshSession, error) {
	keys, err := s.keys(ctx, email)
	if err != nil {
		return nil, err
	}
	found, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RefreshSession, 0, len(found))
	for _, k := range keys {
		if v, ok := found[k]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *RefreshStore) keys(ctx context.Context, email string) ([]string, error) {
	ids, err := s.devices.ListDeviceIDsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(email, id)
	}
	return keys, nil
}
