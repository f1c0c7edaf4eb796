// Package service implements account administration: invitations, the owner's device list
// and the two-factor switch.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/account/domain"
	"consultancy-auth/backend/internal/audit"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/notify"
	orgdomain "consultancy-auth/backend/internal/organization/domain"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/security"
)

// DefaultOrganizationName is the organization BDE accounts are created in. No other role may join it.
const DefaultOrganizationName = "Default"

var (
	ErrDuplicateEmail          = errs.WithField(errs.DuplicateResource, "Email already in use", "email")
	ErrAccountNotFound         = errs.New(errs.NotFound, "Account not found")
	ErrOrganizationNotFound    = errs.WithField(errs.NotFound, "Organization not found", "organizationId")
	ErrDefaultOrganizationRole = errs.WithField(errs.BadRequest, "Only BDE accounts can belong to the default organization", "role")
	ErrInvalidRole             = errs.WithField(errs.BadRequest, "Role is invalid", "role")
)

// AccountRepo is the account persistence used here.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, a *domain.Account) error
	SetTwoFactor(ctx context.Context, id string, enabledAt *time.Time) error
}

// OrganizationRepo resolves the organization an account is created in.
type OrganizationRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
}

// PasswordHasher hashes generated passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// CodeIssuer issues email verification codes.
type CodeIssuer interface {
	Generate(ctx context.Context, email string, t otpdomain.Type, deviceID string) (*otpdomain.Issued, error)
}

// Devices is the device management used for the owner's device list.
type Devices interface {
	List(ctx context.Context, sc identitydomain.SessionContext) ([]devicedomain.DeviceView, error)
	Revoke(ctx context.Context, sc identitydomain.SessionContext, deviceID string) error
}

// CreateAccountInput is an invitation request.
type CreateAccountInput struct {
	Email          string
	FirstName      string
	LastName       string
	Role           domain.Role
	OrganizationID string
}

type AccountService struct {
	accounts AccountRepo
	orgs     OrganizationRepo
	hasher   PasswordHasher
	otp      CodeIssuer
	devices  Devices
	notifier notify.Notifier
	audit    audit.AuditLogger
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService returns an AccountService. auditLogger and logger may be nil.
func NewAccountService(accounts AccountRepo, orgs OrganizationRepo, hasher PasswordHasher, otp CodeIssuer, devices Devices, notifier notify.Notifier, auditLogger audit.AuditLogger, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AccountService{
		accounts: accounts,
		orgs:     orgs,
		hasher:   hasher,
		otp:      otp,
		devices:  devices,
		notifier: notifier,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAccount invites a new account. It gets a random password it never sees (history
// starts with that hash) and stays unverified until the mailed code is confirmed.
func (s *AccountService) CreateAccount(ctx context.Context, actor identitydomain.SessionContext, in CreateAccountInput) (*domain.Account, error) {
	a := &domain.Account{
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Role:           in.Role,
		OrganizationID: in.OrganizationID,
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := a.Validate(); err != nil {
		return nil, errs.WithField(errs.BadRequest, err.Error(), "email")
	}

	exists, err := s.accounts.ExistsByEmail(ctx, a.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	org, err := s.orgs.GetOrganizationByID(ctx, a.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	if org.Name == DefaultOrganizationName && a.Role != domain.RoleBDE {
		return nil, ErrDefaultOrganizationRole
	}
	a.OrganizationName = org.Name

	password, err := security.GenerateRandomPassword()
	if err != nil {
		return nil, err
	}
	a.PasswordHash = password
	if err := a.PreparePassword(s.hasher.Hash); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a.ID = uuid.New().String()
	a.PrevPasswords = []string{a.PasswordHash}
	a.PasswordUpdatedAt = &now
	a.CreatedAt, a.UpdatedAt = now, now

	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}

	issued, err := s.otp.Generate(ctx, a.Email, otpdomain.TypeEmailVerification, "")
	if err != nil {
		return nil, err
	}
	notify.Async(s.notifier, s.logger, notify.CodeMessage(notify.KindConfirmation, a.Email, a.FullName(), issued))

	s.audit.LogEvent(ctx, audit.Event{
		OrganizationID: a.OrganizationID,
		AccountID:      actor.AccountID,
		Action:         audit.ActionAccountCreate,
		Resource:       audit.ResourceAccount,
		IP:             actor.IP,
		Metadata:       map[string]string{"created_account_id": a.ID, "role": string(a.Role)},
	})
	s.logger.Info("account created", zap.String("account_id", a.ID), zap.String("role", string(a.Role)))
	return a, nil
}

// ListDevices returns the caller's devices with their signed-in state.
func (s *AccountService) ListDevices(ctx context.Context, sc identitydomain.SessionContext) ([]devicedomain.DeviceView, error) {
	return s.devices.List(ctx, sc)
}

// RevokeDevice signs another device of the caller out.
func (s *AccountService) RevokeDevice(ctx context.Context, sc identitydomain.SessionContext, deviceID string) error {
	if err := s.devices.Revoke(ctx, sc, deviceID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrganizationID: sc.OrganizationID,
		AccountID:      sc.AccountID,
		Action:         audit.ActionDeviceRevoke,
		Resource:       audit.ResourceDevice,
		IP:             sc.IP,
		Metadata:       map[string]string{"device_id": deviceID},
	})
	return nil
}

// TwoFactorStatus returns when 2FA was enabled, or nil when it is off.
func (s *AccountService) TwoFactorStatus(ctx context.Context, sc identitydomain.SessionContext) (*time.Time, error) {
	a, err := s.accounts.GetByID(ctx, sc.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a.TwoFaEnabledAt, nil
}

// ToggleTwoFactor switches 2FA to enable and returns the resulting enabled-at (nil when
// off). Asking for the current state is a no-op that keeps the original timestamp.
func (s *AccountService) ToggleTwoFactor(ctx context.Context, sc identitydomain.SessionContext, enable bool) (*time.Time, error) {
	a, err := s.accounts.GetByID(ctx, sc.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	if a.TwoFactorEnabled() == enable {
		return a.TwoFaEnabledAt, nil
	}
	var enabledAt *time.Time
	if enable {
		now := s.now().UTC()
		enabledAt = &now
	}
	if err := s.accounts.SetTwoFactor(ctx, a.ID, enabledAt); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrganizationID: sc.OrganizationID,
		AccountID:      sc.AccountID,
		Action:         audit.ActionTwoFactorToggle,
		Resource:       audit.ResourceAccount,
		IP:             sc.IP,
		Metadata:       map[string]string{"enabled": boolString(enabledAt != nil)},
	})
	return enabledAt, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
