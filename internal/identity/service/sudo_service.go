package service

import (
	"context"

	"go.uber.org/zap"

	"consultancy-auth/backend/internal/audit"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
)

// SudoGrant is the result of a password re-confirmation. Cookie is set only when Verified.
type SudoGrant struct {
	Verified bool
	Cookie   CookieSpec
}

// SudoService grants a short-lived elevated session after the password is re-entered.
type SudoService struct {
	accounts AccountRepo
	hasher   Hasher
	issuer   *TokenIssuer
	audit    audit.AuditLogger
	logger   *zap.Logger
}

// NewSudoService returns a SudoService. auditLogger and logger may be nil.
func NewSudoService(accounts AccountRepo, hasher Hasher, issuer *TokenIssuer, auditLogger audit.AuditLogger, logger *zap.Logger) *SudoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &SudoService{accounts: accounts, hasher: hasher, issuer: issuer, audit: auditLogger, logger: logger}
}

// Verify re-checks the caller's password. A wrong password is not an error: the grant
// comes back with Verified false.
func (s *SudoService) Verify(ctx context.Context, sc identitydomain.SessionContext, password string) (*SudoGrant, error) {
	a, err := s.accounts.GetByID(ctx, sc.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.IsVerified() {
		return nil, ErrUnauthorized
	}
	if !s.hasher.Matches(a.PasswordHash, password) {
		return &SudoGrant{Verified: false}, nil
	}
	cookie, err := s.issuer.SudoCookie(a.ID)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrganizationID: a.OrganizationID,
		AccountID:      a.ID,
		Action:         audit.ActionSudoGranted,
		Resource:       audit.ResourceSession,
		IP:             sc.IP,
	})
	return &SudoGrant{Verified: true, Cookie: cookie}, nil
}

// Clear returns the cookie spec that ends the elevated session.
func (s *SudoService) Clear() CookieSpec {
	return s.issuer.Clear(CookieSudo)
}

// Check verifies a sudo cookie and returns the account it was granted to.
func (s *SudoService) Check(raw string) (string, error) {
	if raw == "" {
		return "", ErrSudoRequired
	}
	return s.issuer.VerifySudoCookie(raw)
}
