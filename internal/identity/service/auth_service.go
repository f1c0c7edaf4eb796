// Package service implements the login, session and credential flows: AuthService for
// password login and account credentials, TwoFactorService for device step-up, SudoService
// for password re-confirmation before sensitive changes. TokenIssuer owns every token and
// cookie they hand out.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	accountrepo "consultancy-auth/backend/internal/account/repository"
	accountservice "consultancy-auth/backend/internal/account/service"
	"consultancy-auth/backend/internal/audit"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/notify"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
	passwordresetdomain "consultancy-auth/backend/internal/passwordreset/domain"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/security"
	sessiondomain "consultancy-auth/backend/internal/session/domain"
	"consultancy-auth/backend/internal/telemetry"
)

// Sentinel errors for the auth service; the HTTP layer maps their kinds to statuses.
var (
	ErrInvalidCredentials   = errs.New(errs.InvalidCredentials, "Invalid credentials")
	ErrUnauthorized         = errs.New(errs.Unauthorized, "Unauthorized")
	ErrAccountUnverified    = errs.New(errs.AccountUnverified, "Account is not verified")
	ErrWrongPassword        = errs.WithField(errs.BadRequest, "Current password is incorrect", "currentPassword")
	ErrPasswordReused       = errs.WithField(errs.PasswordReused, "New password must differ from your recent passwords", "newPassword")
	ErrResetPasswordReused  = errs.WithField(errs.PasswordReused, "New password must differ from your recent passwords", "password")
	ErrEmailNotFound        = errs.WithField(errs.NotFound, "No verified account with this email", "email")
	ErrAccountNotFound      = errs.New(errs.NotFound, "Account not found")
	ErrInvalidResetToken    = errs.New(errs.TokenInvalid, "Invalid password reset token")
	ErrResetTokenExpired    = errs.New(errs.TokenExpired, "Password reset token has expired, request a new one")
	ErrResetRequestNotFound = errs.New(errs.NotFound, "Password reset request not found")
)

// LoginKind is the outcome of a login attempt that did not fail.
type LoginKind int

const (
	// LoginAuthenticated means tokens were issued.
	LoginAuthenticated LoginKind = iota
	// LoginRequires2FA means the device must complete the two-factor flow first.
	LoginRequires2FA
	// LoginVerificationSent means the account is unverified and a confirmation mail went out.
	LoginVerificationSent
)

// LoginResult is returned by Login, CompleteLogin and TwoFactorService.Verify.
type LoginResult struct {
	Kind       LoginKind
	Tokens     *TokenPair
	Account    *accountdomain.Account
	HasPasskey bool
	Message    string
}

// LoginOptions controls CompleteLogin.
type LoginOptions struct {
	// CheckDevice runs device evaluation; false after a completed second factor.
	CheckDevice bool
	Method      devicedomain.LoginMethod
}

// AccountRepo is the account persistence used by the auth flows.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id, hash string, history []string, at time.Time) error
	MarkVerified(ctx context.Context, id, hash string, history []string, at time.Time) error
	UpdateEmail(ctx context.Context, id, email string) error
}

// ResetRepo stores outstanding password reset requests.
type ResetRepo interface {
	Upsert(ctx context.Context, r *passwordresetdomain.Request) error
	Get(ctx context.Context, tokenHash, email string) (*passwordresetdomain.Request, error)
	Delete(ctx context.Context, email string) error
}

// OTP is the verification-code state machine.
type OTP interface {
	Generate(ctx context.Context, email string, t otpdomain.Type, deviceID string) (*otpdomain.Issued, error)
	Verify(ctx context.Context, code, token string, t otpdomain.Type, deviceID string) (*otpdomain.Pending, error)
	Consume(ctx context.Context, p *otpdomain.Pending) error
	FindByToken(ctx context.Context, token string, t otpdomain.Type) (*otpdomain.Pending, error)
	ValidateToken(token string, t otpdomain.Type) (string, error)
}

// Devices decides device trust.
type Devices interface {
	Evaluate(ctx context.Context, a *accountdomain.Account, fingerprint, userAgent string, method devicedomain.LoginMethod) (*devicedomain.Decision, error)
	Trust(ctx context.Context, accountID, fingerprint, userAgent string) (*devicedomain.LoginDevice, error)
	Touch(ctx context.Context, accountID, fingerprint string) error
}

// Sessions is the per-device refresh session cache.
type Sessions interface {
	Get(ctx context.Context, email, deviceID string) (*sessiondomain.RefreshSession, error)
	Set(ctx context.Context, email, deviceID, token string) error
	Remove(ctx context.Context, email, deviceID string) error
	RemoveAll(ctx context.Context, email string) error
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Matches(hash, plaintext string) bool
}

// Metrics records auth outcomes. May be nil.
type Metrics interface {
	LoginAttempt(ctx context.Context, outcome string)
	RefreshRejected(ctx context.Context, reason string)
}

// Dependencies wires AuthService. Notifier, Audit, Metrics and Logger may be nil.
type Dependencies struct {
	Accounts AccountRepo
	Resets   ResetRepo
	OTP      OTP
	Devices  Devices
	Sessions Sessions
	Issuer   *TokenIssuer
	Sealer   *security.Sealer
	Hasher   Hasher
	Notifier notify.Notifier
	Audit    audit.AuditLogger
	Metrics  Metrics
	Logger   *zap.Logger
	// PasswordHistorySize bounds the password history; below 1 means 1.
	PasswordHistorySize int
}

// AuthService orchestrates login, refresh, logout, email verification and password flows.
type AuthService struct {
	accounts    AccountRepo
	resets      ResetRepo
	otp         OTP
	devices     Devices
	sessions    Sessions
	issuer      *TokenIssuer
	sealer      *security.Sealer
	hasher      Hasher
	notifier    notify.Notifier
	audit       audit.AuditLogger
	metrics     Metrics
	logger      *zap.Logger
	historySize int
	now         func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Dependencies) *AuthService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.PasswordHistorySize < 1 {
		d.PasswordHistorySize = 1
	}
	return &AuthService{
		accounts:    d.Accounts,
		resets:      d.Resets,
		otp:         d.OTP,
		devices:     d.Devices,
		sessions:    d.Sessions,
		issuer:      d.Issuer,
		sealer:      d.Sealer,
		hasher:      d.Hasher,
		notifier:    d.Notifier,
		audit:       d.Audit,
		metrics:     d.Metrics,
		logger:      d.Logger,
		historySize: d.PasswordHistorySize,
		now:         time.Now,
	}
}

func (s *AuthService) recordLogin(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempt(ctx, outcome)
	}
}

func (s *AuthService) recordRefreshRejected(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RefreshRejected(ctx, reason)
	}
}

func (s *AuthService) logEvent(ctx context.Context, a *accountdomain.Account, sc identitydomain.SessionContext, action, resource string, meta map[string]string) {
	e := audit.Event{Action: action, Resource: resource, IP: sc.IP, Metadata: meta}
	if a != nil {
		e.AccountID, e.OrganizationID = a.ID, a.OrganizationID
	} else {
		e.AccountID, e.OrganizationID = sc.AccountID, sc.OrganizationID
	}
	s.audit.LogEvent(ctx, e)
}

// Login checks credentials. Unverified accounts get a fresh confirmation mail instead of tokens.
func (s *AuthService) Login(ctx context.Context, email, password string, sc identitydomain.SessionContext) (*LoginResult, error) {
	email = accountdomain.NormalizeEmail(email)
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, s.loginFailed(ctx, sc, email)
	}
	// Invited accounts hold a generated password they have never seen, so the password is
	// only checked once the account is verified.
	if !a.IsVerified() {
		if err := s.sendConfirmation(ctx, a); err != nil {
			return nil, err
		}
		s.recordLogin(ctx, telemetry.OutcomeVerificationSent)
		return &LoginResult{
			Kind:    LoginVerificationSent,
			Account: a,
			Message: "Your account is not verified. A verification email has been sent.",
		}, nil
	}
	if a.PasswordHash == "" || !s.hasher.Matches(a.PasswordHash, password) {
		return nil, s.loginFailed(ctx, sc, email)
	}
	return s.CompleteLogin(ctx, a, sc, LoginOptions{CheckDevice: true, Method: devicedomain.MethodPassword})
}

func (s *AuthService) loginFailed(ctx context.Context, sc identitydomain.SessionContext, email string) error {
	s.recordLogin(ctx, telemetry.OutcomeFailed)
	s.logEvent(ctx, nil, sc, audit.ActionLoginFailure, audit.ResourceAuth, map[string]string{"email": email})
	return ErrInvalidCredentials
}

func (s *AuthService) sendConfirmation(ctx context.Context, a *accountdomain.Account) error {
	issued, err := s.otp.Generate(ctx, a.Email, otpdomain.TypeEmailVerification, "")
	if err != nil {
		return err
	}
	notify.Async(s.notifier, s.logger, notify.CodeMessage(notify.KindConfirmation, a.Email, a.FullName(), issued))
	return nil
}

// CompleteLogin evaluates the device (unless opts.CheckDevice is false), then issues tokens
// and stores the refresh token as the device's session.
func (s *AuthService) CompleteLogin(ctx context.Context, a *accountdomain.Account, sc identitydomain.SessionContext, opts LoginOptions) (*LoginResult, error) {
	if opts.CheckDevice {
		method := opts.Method
		if method == "" {
			method = devicedomain.MethodPassword
		}
		decision, err := s.devices.Evaluate(ctx, a, sc.DeviceID, sc.UserAgent, method)
		if err != nil {
			return nil, err
		}
		if decision.Requires2FA {
			s.recordLogin(ctx, telemetry.OutcomeStepUp)
			return &LoginResult{Kind: LoginRequires2FA, Account: a, HasPasskey: decision.HasPasskey}, nil
		}
	}
	pair, err := s.issuer.Issue(ctx, a, sc)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(ctx, a.Email, sc.DeviceID, pair.RefreshToken); err != nil {
		return nil, err
	}
	s.recordLogin(ctx, telemetry.OutcomeAuthenticated)
	s.logEvent(ctx, a, sc, audit.ActionLoginSuccess, audit.ResourceAuth, map[string]string{"device_id": sc.DeviceID})
	s.logger.Info("login", zap.String("account_id", a.ID))
	return &LoginResult{Kind: LoginAuthenticated, Account: a, Tokens: pair}, nil
}

// Refresh rotates the device's refresh token. presented must be the token currently cached
// for (account email, device); a replayed older token fails.
func (s *AuthService) Refresh(ctx context.Context, presented, accountID string, sc identitydomain.SessionContext) (*TokenPair, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		s.recordRefreshRejected(ctx, "unknown_account")
		return nil, ErrUnauthorized
	}
	cached, err := s.sessions.Get(ctx, a.Email, sc.DeviceID)
	if err != nil {
		return nil, err
	}
	if cached == nil || !security.TokenHashEqual(presented, security.HashToken(cached.RefreshToken)) {
		s.recordRefreshRejected(ctx, "token_mismatch")
		return nil, ErrInvalidRefreshToken
	}
	if err := s.devices.Touch(ctx, a.ID, sc.DeviceID); err != nil {
		s.recordRefreshRejected(ctx, "device")
		return nil, err
	}
	pair, err := s.issuer.Issue(ctx, a, sc)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(ctx, a.Email, sc.DeviceID, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout ends the current device's session only.
func (s *AuthService) Logout(ctx context.Context, sc identitydomain.SessionContext) error {
	if err := s.sessions.Remove(ctx, sc.Email, sc.DeviceID); err != nil {
		return err
	}
	s.logEvent(ctx, nil, sc, audit.ActionLogout, audit.ResourceSession, map[string]string{"device_id": sc.DeviceID})
	return nil
}

// VerifyEmail confirms the mailed code, activates the account with a generated password,
// trusts the current device and mails the credentials.
func (s *AuthService) VerifyEmail(ctx context.Context, code, token string, sc identitydomain.SessionContext) (string, error) {
	pending, err := s.otp.Verify(ctx, code, token, otpdomain.TypeEmailVerification, "")
	if err != nil {
		return "", err
	}
	a, err := s.accounts.GetByEmail(ctx, pending.Email)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", ErrAccountNotFound
	}
	password, err := security.GenerateRandomPassword()
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	if err := s.accounts.MarkVerified(ctx, a.ID, hash, []string{hash}, s.now().UTC()); err != nil {
		return "", err
	}
	if err := s.otp.Consume(ctx, pending); err != nil {
		return "", err
	}
	if _, err := s.devices.Trust(ctx, a.ID, sc.DeviceID, sc.UserAgent); err != nil {
		return "", err
	}
	notify.Async(s.notifier, s.logger, notify.Message{
		Kind:           notify.KindUserCredentials,
		RecipientEmail: a.Email,
		RecipientName:  a.FullName(),
		Payload:        map[string]string{"password": password},
	})
	s.logEvent(ctx, a, sc, audit.ActionEmailVerified, audit.ResourceAccount, nil)
	return "Email verified. Your login credentials have been sent to your email.", nil
}

// VerifyEmailToken checks a confirmation token without side effects and returns its email.
func (s *AuthService) VerifyEmailToken(_ context.Context, token string) (string, error) {
	return s.otp.ValidateToken(token, otpdomain.TypeEmailVerification)
}

// reusedPassword reports whether plain matches the live password or any hash in history.
func (s *AuthService) reusedPassword(a *accountdomain.Account, plain string) bool {
	if a.PasswordHash != "" && s.hasher.Matches(a.PasswordHash, plain) {
		return true
	}
	return a.UsedPassword(func(h string) bool { return s.hasher.Matches(h, plain) })
}

// setPassword hashes plain, appends it to the history and persists both.
func (s *AuthService) setPassword(ctx context.Context, a *accountdomain.Account, plain string) error {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return err
	}
	a.PushPasswordHistory(hash, s.historySize)
	a.PasswordHash = hash
	return s.accounts.UpdatePassword(ctx, a.ID, hash, a.PrevPasswords, s.now().UTC())
}

func passwordPolicyError(field string, err error) error {
	return errs.WithField(errs.BadRequest, err.Error(), field)
}

// ChangePassword replaces the password after checking the current one and the history.
// logoutEverywhere ends the sessions of every device, including this one.
func (s *AuthService) ChangePassword(ctx context.Context, sc identitydomain.SessionContext, current, next string, logoutEverywhere bool) error {
	a, err := s.accounts.GetByID(ctx, sc.AccountID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrUnauthorized
	}
	if !a.IsVerified() {
		return ErrAccountUnverified
	}
	if !s.hasher.Matches(a.PasswordHash, current) {
		return ErrWrongPassword
	}
	if err := security.ValidatePassword(next); err != nil {
		return passwordPolicyError("newPassword", err)
	}
	if s.reusedPassword(a, next) {
		return ErrPasswordReused
	}
	if err := s.setPassword(ctx, a, next); err != nil {
		return err
	}
	if logoutEverywhere {
		if err := s.sessions.RemoveAll(ctx, a.Email); err != nil {
			return err
		}
	}
	s.logEvent(ctx, a, sc, audit.ActionPasswordChange, audit.ResourceAccount,
		map[string]string{"logout_everywhere": boolString(logoutEverywhere)})
	return nil
}

// ForgotPassword mails a reset link to a verified account and returns the user-facing message.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = accountdomain.NormalizeEmail(email)
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if a == nil || !a.IsVerified() {
		return "", ErrEmailNotFound
	}
	sealed, err := s.sealer.Seal(security.PurposePasswordReset, &security.EmailClaims{Email: a.Email})
	if err != nil {
		return "", err
	}
	if err := s.resets.Upsert(ctx, &passwordresetdomain.Request{
		Email:     a.Email,
		TokenHash: sealed.Hash,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return "", err
	}
	minutes := notify.Minutes(s.sealer.Codec().TTL(security.PurposePasswordReset))
	notify.Async(s.notifier, s.logger, notify.Message{
		Kind:           notify.KindResetPassword,
		RecipientEmail: a.Email,
		RecipientName:  a.FullName(),
		Payload:        map[string]string{"token": sealed.Token, "expires_in_minutes": minutes},
	})
	return "A password reset link has been sent to your email. It is valid for " + minutes + " minutes.", nil
}

func (s *AuthService) openResetToken(token string) (hash, email string, err error) {
	var claims security.EmailClaims
	hash, err = s.sealer.Open(security.PurposePasswordReset, token, &claims)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return "", "", ErrResetTokenExpired
		}
		return "", "", ErrInvalidResetToken
	}
	return hash, claims.Email, nil
}

// VerifyResetToken checks a reset token without side effects and returns its email.
func (s *AuthService) VerifyResetToken(_ context.Context, token string) (string, error) {
	_, email, err := s.openResetToken(token)
	return email, err
}

// ResetPassword sets a new password from a reset link, consumes the request and signs the
// account out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string, sc identitydomain.SessionContext) error {
	hash, email, err := s.openResetToken(token)
	if err != nil {
		return err
	}
	req, err := s.resets.Get(ctx, hash, email)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrResetRequestNotFound
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrResetRequestNotFound
	}
	if err := security.ValidatePassword(password); err != nil {
		return passwordPolicyError("password", err)
	}
	if s.reusedPassword(a, password) {
		return ErrResetPasswordReused
	}
	if err := s.setPassword(ctx, a, password); err != nil {
		return err
	}
	if err := s.resets.Delete(ctx, email); err != nil {
		return err
	}
	if err := s.sessions.RemoveAll(ctx, email); err != nil {
		return err
	}
	s.logEvent(ctx, a, sc, audit.ActionPasswordReset, audit.ResourceAccount, nil)
	return nil
}

// UpdateEmail changes the login email after password confirmation. The new address is not
// re-verified. Refresh sessions are keyed by email, so every device is signed out.
func (s *AuthService) UpdateEmail(ctx context.Context, sc identitydomain.SessionContext, newEmail, password string) error {
	newEmail = accountdomain.NormalizeEmail(newEmail)
	if err := accountdomain.ValidateEmail(newEmail); err != nil {
		return errs.WithField(errs.BadRequest, "Email is invalid", "email")
	}
	a, err := s.accounts.GetByID(ctx, sc.AccountID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrUnauthorized
	}
	if !s.hasher.Matches(a.PasswordHash, password) {
		return ErrInvalidCredentials
	}
	if newEmail == a.Email {
		return nil
	}
	exists, err := s.accounts.ExistsByEmail(ctx, newEmail)
	if err != nil {
		return err
	}
	if exists {
		return accountservice.ErrDuplicateEmail
	}
	if err := s.sessions.RemoveAll(ctx, a.Email); err != nil {
		return err
	}
	if err := s.accounts.UpdateEmail(ctx, a.ID, newEmail); err != nil {
		if errors.Is(err, accountrepo.ErrEmailTaken) {
			return accountservice.ErrDuplicateEmail
		}
		return err
	}
	s.logEvent(ctx, a, sc, audit.ActionEmailUpdate, audit.ResourceAccount, nil)
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
