package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"consultancy-auth/backend/internal/otp/domain"
	"consultancy-auth/backend/internal/security"
)

type memPendingRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Pending
}

func newMemPendingRepo() *memPendingRepo {
	return &memPendingRepo{rows: map[string]*domain.Pending{}}
}

func (r *memPendingRepo) Replace(_ context.Context, p *domain.Pending) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.Email == p.Email && row.Type == p.Type {
			delete(r.rows, id)
		}
	}
	cp := *p
	r.rows[p.ID] = &cp
	return nil
}

func (r *memPendingRepo) Find(_ context.Context, email string, t domain.Type, deviceID string) (*domain.Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == email && row.Type == t && (deviceID == "" || row.DeviceID == deviceID) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPendingRepo) FindByTokenHash(_ context.Context, hash string) (*domain.Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == hash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPendingRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memPendingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type countingMetrics struct{ issued map[string]int }

func (m *countingMetrics) OTPIssued(_ context.Context, kind string) { m.issued[kind]++ }

func newTestOTPService(t *testing.T) (*OTPService, *memPendingRepo) {
	t.Helper()
	repo := newMemPendingRepo()
	return NewOTPService(repo, security.NewTestSealer(), security.NewHasher(4), nil, nil), repo
}

func TestGenerateAndVerify(t *testing.T) {
	svc, repo := newTestOTPService(t)
	ctx := context.Background()

	issued, err := svc.Generate(ctx, "a@example.com", domain.TypeEmailVerification, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(issued.Code) != 6 || issued.Token == "" {
		t.Fatalf("unexpected issued: %+v", issued)
	}
	if issued.ExpiresIn != 30*time.Minute {
		t.Errorf("ExpiresIn = %v, want 30m", issued.ExpiresIn)
	}

	p, err := svc.Verify(ctx, issued.Code, issued.Token, domain.TypeEmailVerification, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Email != "a@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
	if repo.count() != 1 {
		t.Error("Verify must not delete the row")
	}
	if err := svc.Consume(ctx, p); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if repo.count() != 0 {
		t.Error("Consume should delete the row")
	}
	if _, err := svc.Verify(ctx, issued.Code, issued.Token, domain.TypeEmailVerification, ""); err != ErrNoPendingRequest {
		t.Errorf("reuse after consume: want ErrNoPendingRequest, got %v", err)
	}
}

func TestGenerate_StoresOnlyHashes(t *testing.T) {
	svc, repo := newTestOTPService(t)
	issued, err := svc.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, row := range repo.rows {
		if row.CodeHash == issued.Code || !security.IsHash(row.CodeHash) {
			t.Error("code must be stored as a bcrypt hash")
		}
		if row.TokenHash != security.HashToken(issued.Token) {
			t.Error("token hash must be sha256 of the encrypted token")
		}
		if row.DeviceID != "fp-1" {
			t.Errorf("DeviceID = %q", row.DeviceID)
		}
	}
}

func TestGenerate_SupersedesPrevious(t *testing.T) {
	svc, repo := newTestOTPService(t)
	ctx := context.Background()

	first, err := svc.Generate(ctx, "a@example.com", domain.TypeEmailVerification, "")
	if err != nil {
		t.Fatalf("Generate first: %v", err)
	}
	second, err := svc.Generate(ctx, "a@example.com", domain.TypeEmailVerification, "")
	if err != nil {
		t.Fatalf("Generate second: %v", err)
	}
	if repo.count() != 1 {
		t.Fatalf("rows = %d, want 1", repo.count())
	}
	if _, err := svc.Verify(ctx, first.Code, first.Token, domain.TypeEmailVerification, ""); err != ErrInvalidToken {
		t.Errorf("superseded token: want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Verify(ctx, second.Code, second.Token, domain.TypeEmailVerification, ""); err != nil {
		t.Errorf("latest token: %v", err)
	}
}

func TestGenerate_TypesAreIndependent(t *testing.T) {
	svc, repo := newTestOTPService(t)
	ctx := context.Background()
	if _, err := svc.Generate(ctx, "a@example.com", domain.TypeEmailVerification, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Generate(ctx, "a@example.com", domain.TypeTwoFactor, "fp"); err != nil {
		t.Fatal(err)
	}
	if repo.count() != 2 {
		t.Errorf("rows = %d, want one per type", repo.count())
	}
}

func TestVerify_WrongCode(t *testing.T) {
	svc, _ := newTestOTPService(t)
	issued, _ := svc.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp-1")
	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}
	if _, err := svc.Verify(context.Background(), wrong, issued.Token, domain.TypeTwoFactor, "fp-1"); err != ErrInvalidCode {
		t.Errorf("want ErrInvalidCode, got %v", err)
	}
}

func TestVerify_WrongDevice(t *testing.T) {
	svc, _ := newTestOTPService(t)
	issued, _ := svc.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp-1")
	if _, err := svc.Verify(context.Background(), issued.Code, issued.Token, domain.TypeTwoFactor, "fp-2"); err != ErrNoPendingRequest {
		t.Errorf("want ErrNoPendingRequest, got %v", err)
	}
}

func TestVerify_TokenOfOtherTypeIsInvalid(t *testing.T) {
	svc, _ := newTestOTPService(t)
	issued, _ := svc.Generate(context.Background(), "a@example.com", domain.TypeEmailVerification, "")
	if _, err := svc.Verify(context.Background(), issued.Code, issued.Token, domain.TypeTwoFactor, ""); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), issued.Code, "garbage", domain.TypeEmailVerification, ""); err != ErrInvalidToken {
		t.Errorf("garbage: want ErrInvalidToken, got %v", err)
	}
}

func TestVerify_ExpiredRegardlessOfCode(t *testing.T) {
	repo := newMemPendingRepo()
	enc, _ := security.NewEncryptor(security.TestEncryptionKey)
	pastCodec := security.NewTestTokenCodec().WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	past := NewOTPService(repo, security.NewSealer(pastCodec, enc), security.NewHasher(4), nil, nil)
	issued, err := past.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	svc := NewOTPService(repo, security.NewTestSealer(), security.NewHasher(4), nil, nil)
	for _, code := range []string{issued.Code, "999999"} {
		if _, err := svc.Verify(context.Background(), code, issued.Token, domain.TypeTwoFactor, "fp-1"); err != ErrTokenExpired {
			t.Errorf("code %q: want ErrTokenExpired, got %v", code, err)
		}
	}
	if _, err := svc.ValidateToken(issued.Token, domain.TypeTwoFactor); err != ErrTokenExpired {
		t.Errorf("ValidateToken: want ErrTokenExpired, got %v", err)
	}
}

func TestFindByToken(t *testing.T) {
	svc, _ := newTestOTPService(t)
	issued, _ := svc.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp-1")

	p, err := svc.FindByToken(context.Background(), issued.Token, domain.TypeTwoFactor)
	if err != nil || p.Email != "a@example.com" {
		t.Fatalf("FindByToken = %+v, %v", p, err)
	}
	if _, err := svc.FindByToken(context.Background(), issued.Token, domain.TypeEmailVerification); err != ErrInvalidToken {
		t.Errorf("other type: want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.FindByToken(context.Background(), "unknown", domain.TypeTwoFactor); err != ErrInvalidToken {
		t.Errorf("unknown: want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.FindByToken(context.Background(), "", domain.TypeTwoFactor); err != ErrInvalidToken {
		t.Errorf("empty: want ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_NoSideEffect(t *testing.T) {
	svc, repo := newTestOTPService(t)
	issued, _ := svc.Generate(context.Background(), "a@example.com", domain.TypeEmailVerification, "")

	email, err := svc.ValidateToken(issued.Token, domain.TypeEmailVerification)
	if err != nil || email != "a@example.com" {
		t.Fatalf("ValidateToken = %q, %v", email, err)
	}
	if repo.count() != 1 {
		t.Error("ValidateToken must not touch the repository")
	}
}

func TestGenerate_UnknownTypeAndMetrics(t *testing.T) {
	repo := newMemPendingRepo()
	m := &countingMetrics{issued: map[string]int{}}
	svc := NewOTPService(repo, security.NewTestSealer(), security.NewHasher(4), m, nil)

	if _, err := svc.Generate(context.Background(), "a@example.com", domain.Type("sms"), ""); err != ErrUnknownType {
		t.Errorf("want ErrUnknownType, got %v", err)
	}
	if _, err := svc.Generate(context.Background(), "a@example.com", domain.TypeTwoFactor, "fp"); err != nil {
		t.Fatal(err)
	}
	if m.issued["twofactor-verification"] != 1 {
		t.Errorf("issued = %v", m.issued)
	}
}
