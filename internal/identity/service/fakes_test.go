package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	accountrepo "consultancy-auth/backend/internal/account/repository"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	deviceservice "consultancy-auth/backend/internal/device/service"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/notify"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
	otpservice "consultancy-auth/backend/internal/otp/service"
	passwordresetdomain "consultancy-auth/backend/internal/passwordreset/domain"
	"consultancy-auth/backend/internal/security"
	sessiondomain "consultancy-auth/backend/internal/session/domain"
)

const testPassword = "Correct-Horse-42"

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*accountdomain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*accountdomain.Account{}}
}

func (r *memAccounts) put(a *accountdomain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.byID[a.ID] = &cp
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *memAccounts) GetByEmail(_ context.Context, email string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	a, err := r.GetByEmail(ctx, email)
	return a != nil, err
}

func (r *memAccounts) UpdatePassword(_ context.Context, id, hash string, history []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.byID[id]
	a.PasswordHash = hash
	a.PrevPasswords = append([]string(nil), history...)
	a.PasswordUpdatedAt = &at
	return nil
}

func (r *memAccounts) MarkVerified(_ context.Context, id, hash string, history []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.byID[id]
	a.PasswordHash = hash
	a.PrevPasswords = append([]string(nil), history...)
	a.VerifiedAt = &at
	a.PasswordUpdatedAt = &at
	return nil
}

func (r *memAccounts) UpdateEmail(_ context.Context, id, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email && a.ID != id {
			return accountrepo.ErrEmailTaken
		}
	}
	r.byID[id].Email = email
	return nil
}

type memResets struct {
	mu   sync.Mutex
	rows map[string]*passwordresetdomain.Request // by email
}

func (r *memResets) Upsert(_ context.Context, req *passwordresetdomain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.rows[req.Email] = &cp
	return nil
}

func (r *memResets) Get(_ context.Context, tokenHash, email string) (*passwordresetdomain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.rows[email]; ok && req.TokenHash == tokenHash {
		cp := *req
		return &cp, nil
	}
	return nil, nil
}

func (r *memResets) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, email)
	return nil
}

type memPending struct {
	mu   sync.Mutex
	rows map[string]*otpdomain.Pending // by id
}

func (r *memPending) Replace(_ context.Context, p *otpdomain.Pending) error {
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

func (r *memPending) Find(_ context.Context, email string, t otpdomain.Type, deviceID string) (*otpdomain.Pending, error) {
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

func (r *memPending) FindByTokenHash(_ context.Context, tokenHash string) (*otpdomain.Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == tokenHash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPending) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

// fakeDevices trusts devices explicitly and requires 2FA for any other device of an
// account with 2FA enabled.
type fakeDevices struct {
	mu      sync.Mutex
	trusted map[string]bool // by account|device
}

func (d *fakeDevices) isTrusted(accountID, deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trusted[accountID+"|"+deviceID]
}

func (d *fakeDevices) Evaluate(_ context.Context, a *accountdomain.Account, fingerprint, _ string, _ devicedomain.LoginMethod) (*devicedomain.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := a.ID + "|" + fingerprint
	if d.trusted[key] || !a.TwoFactorEnabled() {
		d.trusted[key] = true
		return &devicedomain.Decision{}, nil
	}
	return &devicedomain.Decision{Requires2FA: true}, nil
}

func (d *fakeDevices) Trust(_ context.Context, accountID, fingerprint, userAgent string) (*devicedomain.LoginDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trusted[accountID+"|"+fingerprint] = true
	return &devicedomain.LoginDevice{AccountID: accountID, DeviceID: fingerprint, UserAgent: userAgent, IsTrusted: true}, nil
}

func (d *fakeDevices) Touch(_ context.Context, accountID, fingerprint string) error {
	if !d.isTrusted(accountID, fingerprint) {
		return deviceservice.ErrUnrecognizedDevice
	}
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string // by email|device
}

func (s *memSessions) Get(_ context.Context, email, deviceID string) (*sessiondomain.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.tokens[email+"|"+deviceID]; ok {
		return &sessiondomain.RefreshSession{DeviceID: deviceID, RefreshToken: tok}, nil
	}
	return nil, nil
}

func (s *memSessions) Set(_ context.Context, email, deviceID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[email+"|"+deviceID] = token
	return nil
}

func (s *memSessions) Remove(_ context.Context, email, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, email+"|"+deviceID)
	return nil
}

func (s *memSessions) RemoveAll(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.tokens {
		if strings.HasPrefix(k, email+"|") {
			delete(s.tokens, k)
		}
	}
	return nil
}

func (s *memSessions) count(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.tokens {
		if strings.HasPrefix(k, email+"|") {
			n++
		}
	}
	return n
}

type countingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	rejected map[string]int
}

func (m *countingMetrics) LoginAttempt(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) RefreshRejected(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

type testAuth struct {
	svc      *AuthService
	twoFA    *TwoFactorService
	sudo     *SudoService
	issuer   *TokenIssuer
	sealer   *security.Sealer
	hasher   *security.Hasher
	accounts *memAccounts
	resets   *memResets
	pending  *memPending
	devices  *fakeDevices
	sessions *memSessions
	metrics  *countingMetrics
	outbox   chan notify.Message
}

func newTestAuth(t *testing.T) *testAuth {
	t.Helper()
	return newTestAuthWithHistory(t, 5)
}

func newTestAuthWithHistory(t *testing.T, historySize int) *testAuth {
	t.Helper()
	sealer := security.NewTestSealer()
	hasher := security.NewHasher(4)
	ta := &testAuth{
		issuer:   NewTokenIssuer(sealer.Codec(), security.NewCookieSigner("test-cookie-secret"), false),
		sealer:   sealer,
		hasher:   hasher,
		accounts: newMemAccounts(),
		resets:   &memResets{rows: map[string]*passwordresetdomain.Request{}},
		pending:  &memPending{rows: map[string]*otpdomain.Pending{}},
		devices:  &fakeDevices{trusted: map[string]bool{}},
		sessions: &memSessions{tokens: map[string]string{}},
		metrics:  &countingMetrics{logins: map[string]int{}, rejected: map[string]int{}},
		outbox:   make(chan notify.Message, 16),
	}
	notifier := notify.Func(func(_ context.Context, msg notify.Message) error {
		ta.outbox <- msg
		return nil
	})
	ta.svc = NewAuthService(Dependencies{
		Accounts:            ta.accounts,
		Resets:              ta.resets,
		OTP:                 otpservice.NewOTPService(ta.pending, sealer, hasher, nil, nil),
		Devices:             ta.devices,
		Sessions:            ta.sessions,
		Issuer:              ta.issuer,
		Sealer:              sealer,
		Hasher:              hasher,
		Notifier:            notifier,
		Metrics:             ta.metrics,
		PasswordHistorySize: historySize,
	})
	ta.twoFA = NewTwoFactorService(ta.svc, notifier, nil)
	ta.sudo = NewSudoService(ta.accounts, hasher, ta.issuer, nil, nil)
	return ta
}

// addAccount stores a verified account whose live password is testPassword.
func (ta *testAuth) addAccount(t *testing.T, email string, twoFactor bool) *accountdomain.Account {
	t.Helper()
	hash, err := ta.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	a := &accountdomain.Account{
		ID:            uuid.New().String(),
		Email:         email,
		PasswordHash:  hash,
		PrevPasswords: []string{hash},
		Role:          accountdomain.RoleCounselor,
		FirstName:     "Asha",
		LastName:      "Rao",
		VerifiedAt:    &now,
	}
	if twoFactor {
		a.TwoFaEnabledAt = &now
	}
	ta.accounts.put(a)
	return a
}

// nextMessage waits for the next notification of kind, skipping others.
func (ta *testAuth) nextMessage(t *testing.T, kind notify.Kind) notify.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ta.outbox:
			if msg.Kind == kind {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s notification sent", kind)
		}
	}
}

func sessionOn(device string) identitydomain.SessionContext {
	return identitydomain.SessionContext{DeviceID: device, UserAgent: "Mozilla/5.0 " + device, IP: "10.0.0.1"}
}

func authedOn(a *accountdomain.Account, device string) identitydomain.SessionContext {
	sc := sessionOn(device)
	sc.AccountID, sc.Email, sc.Role, sc.OrganizationID = a.ID, a.Email, string(a.Role), a.OrganizationID
	return sc
}
