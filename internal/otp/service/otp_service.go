// Package service implements the per-(email, type) one-time verification state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/otp"
	"consultancy-auth/backend/internal/otp/domain"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/security"
)

// Sentinel errors for the OTP service; handlers map their kinds to HTTP statuses.
var (
	ErrInvalidToken     = errs.New(errs.TokenInvalid, "Invalid verification token")
	ErrTokenExpired     = errs.New(errs.TokenExpired, "Verification token has expired, request a new one")
	ErrNoPendingRequest = errs.New(errs.TokenInvalid, "No pending verification request found")
	ErrInvalidCode      = errs.WithField(errs.TokenInvalid, "Invalid verification code", "code")
	ErrUnknownType      = errors.New("unknown verification type")
)

// Types maps each verification type to the token purpose whose secret and TTL it uses.
var Types = map[domain.Type]security.Purpose{
	domain.TypeEmailVerification: security.PurposeEmailVerification,
	domain.TypeTwoFactor:         security.PurposeTwoFactor,
}

// PendingRepo is the minimal pending-verification repository needed by the OTP service.
type PendingRepo interface {
	Replace(ctx context.Context, p *domain.Pending) error
	Find(ctx context.Context, email string, t domain.Type, deviceID string) (*domain.Pending, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Pending, error)
	Delete(ctx context.Context, id string) error
}

// CodeHasher hashes and checks one-time codes.
type CodeHasher interface {
	Hash(plaintext string) (string, error)
	Matches(hash, plaintext string) bool
}

// Metrics records OTP issuance. May be nil.
type Metrics interface {
	OTPIssued(ctx context.Context, kind string)
}

// OTPService generates and verifies one-time codes bound to an encrypted verification token.
type OTPService struct {
	repo    PendingRepo
	sealer  *security.Sealer
	hasher  CodeHasher
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewOTPService returns an OTPService. logger and metrics may be nil.
func NewOTPService(repo PendingRepo, sealer *security.Sealer, hasher CodeHasher, metrics Metrics, logger *zap.Logger) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{
		repo:    repo,
		sealer:  sealer,
		hasher:  hasher,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate issues a new code and verification token for (email, t), superseding any
// previous pending request for the same pair. deviceID binds the ticket when non-empty.
func (s *OTPService) Generate(ctx context.Context, email string, t domain.Type, deviceID string) (*domain.Issued, error) {
	purpose, ok := Types[t]
	if !ok {
		return nil, ErrUnknownType
	}
	code, err := otp.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	sealed, err := s.sealer.Seal(purpose, &security.EmailClaims{Email: email})
	if err != nil {
		return nil, fmt.Errorf("seal verification token: %w", err)
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	pending := &domain.Pending{
		ID:        uuid.New().String(),
		Email:     email,
		CodeHash:  codeHash,
		TokenHash: sealed.Hash,
		Type:      t,
		DeviceID:  deviceID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Replace(ctx, pending); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OTPIssued(ctx, string(t))
	}
	s.logger.Debug("otp issued", zap.String("type", string(t)), zap.Bool("device_bound", deviceID != ""))
	return &domain.Issued{
		Code:      code,
		Token:     sealed.Token,
		ExpiresAt: sealed.ExpiresAt,
		ExpiresIn: s.sealer.Codec().TTL(purpose),
	}, nil
}

// Verify checks code and token for type t and returns the matching pending record. The
// record is not deleted; callers call Consume once they have acted on it.
func (s *OTPService) Verify(ctx context.Context, code, token string, t domain.Type, deviceID string) (*domain.Pending, error) {
	purpose, ok := Types[t]
	if !ok {
		return nil, ErrUnknownType
	}
	var claims security.EmailClaims
	if _, err := s.sealer.Open(purpose, token, &claims); err != nil {
		return nil, mapTokenError(err)
	}
	pending, err := s.repo.Find(ctx, claims.Email, t, deviceID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrNoPendingRequest
	}
	// The token proves which request is being completed; the code proves delivery.
	if !security.TokenHashEqual(token, pending.TokenHash) {
		return nil, ErrInvalidToken
	}
	if !s.hasher.Matches(pending.CodeHash, code) {
		return nil, ErrInvalidCode
	}
	return pending, nil
}

// Consume deletes a verified pending record.
func (s *OTPService) Consume(ctx context.Context, p *domain.Pending) error {
	return s.repo.Delete(ctx, p.ID)
}

// FindByToken returns the pending record of type t issued with token without checking its
// signature or a code. Returns ErrInvalidToken when none exists or the row has another type.
func (s *OTPService) FindByToken(ctx context.Context, token string, t domain.Type) (*domain.Pending, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	pending, err := s.repo.FindByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.Type != t {
		return nil, ErrInvalidToken
	}
	return pending, nil
}

// ValidateToken decrypts and verifies token for type t without any lookup or side effect.
// Returns the email it was issued for.
func (s *OTPService) ValidateToken(token string, t domain.Type) (string, error) {
	purpose, ok := Types[t]
	if !ok {
		return "", ErrUnknownType
	}
	var claims security.EmailClaims
	if _, err := s.sealer.Open(purpose, token, &claims); err != nil {
		return "", mapTokenError(err)
	}
	return claims.Email, nil
}

func mapTokenError(err error) error {
	if errors.Is(err, security.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
