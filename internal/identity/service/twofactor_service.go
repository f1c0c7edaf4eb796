package service

import (
	"context"

	"go.uber.org/zap"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/notify"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
)

// TwoFactorChallenge is returned when a code was sent. Token is echoed back with the code.
type TwoFactorChallenge struct {
	Token            string
	ExpiresInSeconds int64
}

// TwoFactorService runs the second factor for devices the login flow did not trust.
type TwoFactorService struct {
	auth     *AuthService
	accounts AccountRepo
	otp      OTP
	devices  Devices
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewTwoFactorService returns a TwoFactorService that completes logins through auth.
func NewTwoFactorService(auth *AuthService, notifier notify.Notifier, logger *zap.Logger) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoFactorService{
		auth:     auth,
		accounts: auth.accounts,
		otp:      auth.otp,
		devices:  auth.devices,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *TwoFactorService) verifiedAccount(ctx context.Context, email string) (*accountdomain.Account, error) {
	a, err := s.accounts.GetByEmail(ctx, accountdomain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if a == nil || !a.IsVerified() {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// Send mails a two-factor code bound to the caller's device.
func (s *TwoFactorService) Send(ctx context.Context, email string, sc identitydomain.SessionContext) (*TwoFactorChallenge, error) {
	a, err := s.verifiedAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	issued, err := s.otp.Generate(ctx, a.Email, otpdomain.TypeTwoFactor, sc.DeviceID)
	if err != nil {
		return nil, err
	}
	notify.Async(s.notifier, s.logger, notify.CodeMessage(notify.KindTwoFactorOTP, a.Email, a.FullName(), issued))
	return &TwoFactorChallenge{Token: issued.Token, ExpiresInSeconds: int64(issued.ExpiresIn.Seconds())}, nil
}

// Verify checks the code for this device, trusts the device and completes the login.
func (s *TwoFactorService) Verify(ctx context.Context, code, token string, sc identitydomain.SessionContext) (*LoginResult, error) {
	pending, err := s.otp.Verify(ctx, code, token, otpdomain.TypeTwoFactor, sc.DeviceID)
	if err != nil {
		return nil, err
	}
	a, err := s.verifiedAccount(ctx, pending.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.devices.Trust(ctx, a.ID, sc.DeviceID, sc.UserAgent); err != nil {
		return nil, err
	}
	if err := s.otp.Consume(ctx, pending); err != nil {
		return nil, err
	}
	return s.auth.CompleteLogin(ctx, a, sc, LoginOptions{CheckDevice: false, Method: devicedomain.MethodPassword})
}

// Resend issues a new code for the email behind an outstanding two-factor token. The new
// request supersedes the old one.
func (s *TwoFactorService) Resend(ctx context.Context, token string, sc identitydomain.SessionContext) (*TwoFactorChallenge, error) {
	pending, err := s.otp.FindByToken(ctx, token, otpdomain.TypeTwoFactor)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, pending.Email, sc)
}
