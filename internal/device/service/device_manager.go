// Package service decides device trust on login and manages an account's known devices.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	"consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/policy/engine"
	sessiondomain "consultancy-auth/backend/internal/session/domain"
)

// Sentinel errors for device management.
var (
	ErrCannotRevokeCurrentDevice = errs.New(errs.BadRequest, "Cannot revoke current device")
	ErrUnrecognizedDevice        = errs.New(errs.Unauthorized, "Unrecognized device")
)

// DeviceRepo is the minimal device repository needed by the manager.
type DeviceRepo interface {
	Get(ctx context.Context, accountID, deviceID string) (*domain.LoginDevice, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.LoginDevice, error)
	Upsert(ctx context.Context, d *domain.LoginDevice) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	SetTrusted(ctx context.Context, id string, trusted bool) error
}

// PasskeyRepo is the minimal passkey repository needed by the manager.
type PasskeyRepo interface {
	ExistsForAccount(ctx context.Context, accountID string) (bool, error)
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}

// SessionStore is the part of the refresh session store the manager needs.
type SessionStore interface {
	Remove(ctx context.Context, email, deviceID string) error
	GetAll(ctx context.Context, email string) ([]sessiondomain.RefreshSession, error)
}

// DeviceManager is the single gate that decides whether a login proceeds straight to
// token issuance or detours through two-factor verification.
type DeviceManager struct {
	devices  DeviceRepo
	passkeys PasskeyRepo
	sessions SessionStore
	policy   engine.Evaluator
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeviceManager returns a DeviceManager. logger may be nil.
func NewDeviceManager(devices DeviceRepo, passkeys PasskeyRepo, sessions SessionStore, policy engine.Evaluator, logger *zap.Logger) *DeviceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceManager{
		devices:  devices,
		passkeys: passkeys,
		sessions: sessions,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate decides trust for a login of account from fingerprint. A known trusted device
// is touched and trusted. Otherwise the policy may require two-factor verification, in
// which case no row is written; else the device is recorded as trusted.
func (m *DeviceManager) Evaluate(ctx context.Context, account *accountdomain.Account, fingerprint, userAgent string, method domain.LoginMethod) (*domain.Decision, error) {
	existing, err := m.devices.Get(ctx, account.ID, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsTrusted {
		now := m.now().UTC()
		if err := m.devices.TouchLogin(ctx, existing.ID, now); err != nil {
			return nil, err
		}
		existing.LastLogin, existing.LastActivityRecord = now, now
		return &domain.Decision{Device: existing}, nil
	}

	hasPasskey := false
	if account.TwoFactorEnabled() {
		if hasPasskey, err = m.passkeys.ExistsForAccount(ctx, account.ID); err != nil {
			return nil, err
		}
	}
	stepUp, err := m.policy.EvaluateStepUp(ctx, engine.StepUpInput{
		AccountID:      account.ID,
		Role:           string(account.Role),
		TwoFAEnabled:   account.TwoFactorEnabled(),
		HasPasskey:     hasPasskey,
		Method:         string(method),
		DeviceID:       fingerprint,
		IsKnownTrusted: false,
	})
	if err != nil {
		return nil, err
	}
	if stepUp {
		return &domain.Decision{Requires2FA: true, HasPasskey: hasPasskey}, nil
	}

	d, err := m.upsertTrusted(ctx, account.ID, fingerprint, userAgent, existing)
	if err != nil {
		return nil, err
	}
	return &domain.Decision{Device: d}, nil
}

// Trust establishes or re-trusts the device after a successful two-factor verification.
func (m *DeviceManager) Trust(ctx context.Context, accountID, fingerprint, userAgent string) (*domain.LoginDevice, error) {
	existing, err := m.devices.Get(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}
	return m.upsertTrusted(ctx, accountID, fingerprint, userAgent, existing)
}

func (m *DeviceManager) upsertTrusted(ctx context.Context, accountID, fingerprint, userAgent string, existing *domain.LoginDevice) (*domain.LoginDevice, error) {
	now := m.now().UTC()
	d := &domain.LoginDevice{
		ID:                 uuid.New().String(),
		AccountID:          accountID,
		DeviceID:           fingerprint,
		UserAgent:          userAgent,
		IsTrusted:          true,
		FirstLogin:         now,
		LastLogin:          now,
		LastActivityRecord: now,
	}
	if existing != nil {
		d.ID = existing.ID
		d.FirstLogin = existing.FirstLogin
	}
	if err := m.devices.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Touch records activity on the refresh path. The device must be known and trusted.
func (m *DeviceManager) Touch(ctx context.Context, accountID, fingerprint string) error {
	d, err := m.devices.Get(ctx, accountID, fingerprint)
	if err != nil {
		return err
	}
	if d == nil || !d.IsTrusted {
		return ErrUnrecognizedDevice
	}
	return m.devices.TouchActivity(ctx, d.ID, m.now().UTC())
}

// Revoke signs deviceID out: it is no longer trusted, its refresh session is deleted and
// every passkey of the account is removed. The caller's own device cannot be revoked.
func (m *DeviceManager) Revoke(ctx context.Context, sc identitydomain.SessionContext, deviceID string) error {
	if deviceID == sc.DeviceID {
		return ErrCannotRevokeCurrentDevice
	}
	d, err := m.devices.Get(ctx, sc.AccountID, deviceID)
	if err != nil {
		return err
	}
	if d != nil {
		if err := m.devices.SetTrusted(ctx, d.ID, false); err != nil {
			return err
		}
	}
	if err := m.sessions.Remove(ctx, sc.Email, deviceID); err != nil {
		return err
	}
	n, err := m.passkeys.DeleteByAccount(ctx, sc.AccountID)
	if err != nil {
		return err
	}
	m.logger.Info("device revoked",
		zap.String("account_id", sc.AccountID),
		zap.Bool("device_known", d != nil),
		zap.Int64("passkeys_deleted", n),
	)
	return nil
}

// List returns the caller's devices, most recent login first, flagging which have a live
// refresh session and which one is the caller's.
func (m *DeviceManager) List(ctx context.Context, sc identitydomain.SessionContext) ([]domain.DeviceView, error) {
	devices, err := m.devices.ListByAccount(ctx, sc.AccountID)
	if err != nil {
		return nil, err
	}
	sessions, err := m.sessions.GetAll(ctx, sc.Email)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		live[s.DeviceID] = true
	}
	out := make([]domain.DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, domain.DeviceView{
			LoginDevice: *d,
			SignedIn:    live[d.DeviceID],
			Current:     d.DeviceID == sc.DeviceID,
		})
	}
	return out, nil
}
