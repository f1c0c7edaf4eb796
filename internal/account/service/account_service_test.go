package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"consultancy-auth/backend/internal/account/domain"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/notify"
	orgdomain "consultancy-auth/backend/internal/organization/domain"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
	"consultancy-auth/backend/internal/security"
)

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*domain.Account
}

func newMemAccounts() *memAccounts { return &memAccounts{byID: map[string]*domain.Account{}} }

func (m *memAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memAccounts) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAccounts) Create(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccounts) SetTwoFactor(_ context.Context, id string, enabledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].TwoFaEnabledAt = enabledAt
	return nil
}

type memOrgs map[string]*orgdomain.Org

func (m memOrgs) GetOrganizationByID(_ context.Context, id string) (*orgdomain.Org, error) {
	return m[id], nil
}

type fakeIssuer struct {
	calls []string
}

func (f *fakeIssuer) Generate(_ context.Context, email string, t otpdomain.Type, _ string) (*otpdomain.Issued, error) {
	f.calls = append(f.calls, email+"|"+string(t))
	return &otpdomain.Issued{Code: "123456", Token: "tok", ExpiresIn: 30 * time.Minute}, nil
}

type fakeDevices struct {
	revoked []string
}

func (f *fakeDevices) List(context.Context, identitydomain.SessionContext) ([]devicedomain.DeviceView, error) {
	return []devicedomain.DeviceView{{LoginDevice: devicedomain.LoginDevice{DeviceID: "fp-1"}, Current: true}}, nil
}

func (f *fakeDevices) Revoke(_ context.Context, _ identitydomain.SessionContext, deviceID string) error {
	f.revoked = append(f.revoked, deviceID)
	return nil
}

type captureNotifier struct {
	ch chan notify.Message
}

func (c *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.ch <- msg
	return nil
}

type fixture struct {
	svc      *AccountService
	accounts *memAccounts
	issuer   *fakeIssuer
	devices  *fakeDevices
	mail     *captureNotifier
}

func newTestAccountService(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: newMemAccounts(),
		issuer:   &fakeIssuer{},
		devices:  &fakeDevices{},
		mail:     &captureNotifier{ch: make(chan notify.Message, 4)},
	}
	orgs := memOrgs{
		"org-acme":    {ID: "org-acme", Name: "Acme Consultants"},
		"org-default": {ID: "org-default", Name: DefaultOrganizationName},
	}
	f.svc = NewAccountService(f.accounts, orgs, security.NewHasher(4), f.issuer, f.devices, f.mail, nil, nil)
	return f
}

func (f *fixture) awaitMail(t *testing.T) notify.Message {
	t.Helper()
	select {
	case msg := <-f.mail.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}
	return notify.Message{}
}

var admin = identitydomain.SessionContext{AccountID: "admin-1", Role: string(domain.RoleAdmin)}

func TestCreateAccount(t *testing.T) {
	f := newTestAccountService(t)

	a, err := f.svc.CreateAccount(context.Background(), admin, CreateAccountInput{
		Email: " New@Example.com ", FirstName: "Ada", LastName: "Lovelace",
		Role: domain.RoleCounselor, OrganizationID: "org-acme",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.Email != "new@example.com" || a.OrganizationName != "Acme Consultants" {
		t.Errorf("account = %+v", a)
	}
	if a.IsVerified() {
		t.Error("invited account must be unverified")
	}
	if !security.IsHash(a.PasswordHash) || len(a.PrevPasswords) != 1 || a.PrevPasswords[0] != a.PasswordHash {
		t.Errorf("password history should start with the generated hash: %v", a.PrevPasswords)
	}
	if len(f.issuer.calls) != 1 || f.issuer.calls[0] != "new@example.com|email-verification" {
		t.Errorf("issuer calls = %v", f.issuer.calls)
	}
	msg := f.awaitMail(t)
	if msg.Kind != notify.KindConfirmation || msg.RecipientName != "Ada Lovelace" || msg.Payload["code"] != "123456" {
		t.Errorf("mail = %+v", msg)
	}
}

func TestCreateAccount_Rejections(t *testing.T) {
	f := newTestAccountService(t)
	ctx := context.Background()
	if _, err := f.svc.CreateAccount(ctx, admin, CreateAccountInput{Email: "dup@example.com", Role: domain.RoleUser, OrganizationID: "org-acme"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name string
		in   CreateAccountInput
		want error
	}{
		{"duplicate", CreateAccountInput{Email: "DUP@example.com", OrganizationID: "org-acme"}, ErrDuplicateEmail},
		{"unknown org", CreateAccountInput{Email: "x@example.com", OrganizationID: "nope"}, ErrOrganizationNotFound},
		{"default org non-bde", CreateAccountInput{Email: "y@example.com", Role: domain.RoleCounselor, OrganizationID: "org-default"}, ErrDefaultOrganizationRole},
		{"bad role", CreateAccountInput{Email: "z@example.com", Role: "wizard", OrganizationID: "org-acme"}, ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateAccount(ctx, admin, tc.in); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := f.svc.CreateAccount(ctx, admin, CreateAccountInput{Email: "not-an-email", OrganizationID: "org-acme"}); err == nil {
		t.Error("invalid email should fail")
	}
	if _, err := f.svc.CreateAccount(ctx, admin, CreateAccountInput{Email: "bde@example.com", Role: domain.RoleBDE, OrganizationID: "org-default"}); err != nil {
		t.Errorf("BDE may join the default organization: %v", err)
	}
}

func TestToggleTwoFactor(t *testing.T) {
	f := newTestAccountService(t)
	ctx := context.Background()
	_ = f.accounts.Create(ctx, &domain.Account{ID: "acc-1", Email: "a@example.com"})
	sc := identitydomain.SessionContext{AccountID: "acc-1"}

	on, err := f.svc.ToggleTwoFactor(ctx, sc, true)
	if err != nil || on == nil {
		t.Fatalf("enable: %v, %v", on, err)
	}
	status, _ := f.svc.TwoFactorStatus(ctx, sc)
	if status == nil || !status.Equal(*on) {
		t.Errorf("status = %v, want %v", status, on)
	}
	off, err := f.svc.ToggleTwoFactor(ctx, sc, false)
	if err != nil || off != nil {
		t.Fatalf("disable: %v, %v", off, err)
	}
	if status, _ := f.svc.TwoFactorStatus(ctx, sc); status != nil {
		t.Errorf("status after disable = %v", status)
	}
}

func TestToggleTwoFactor_EnableWhenEnabled(t *testing.T) {
	f := newTestAccountService(t)
	ctx := context.Background()
	since := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_ = f.accounts.Create(ctx, &domain.Account{ID: "acc-1", Email: "a@example.com", TwoFaEnabledAt: &since})
	sc := identitydomain.SessionContext{AccountID: "acc-1"}

	for i := 0; i < 2; i++ {
		at, err := f.svc.ToggleTwoFactor(ctx, sc, true)
		if err != nil || at == nil || !at.Equal(since) {
			t.Fatalf("enable #%d = %v, %v; want unchanged %v", i, at, err, since)
		}
	}
	if status, _ := f.svc.TwoFactorStatus(ctx, sc); status == nil || !status.Equal(since) {
		t.Errorf("status = %v, want %v", status, since)
	}
}

func TestToggleTwoFactor_DisableWhenDisabled(t *testing.T) {
	f := newTestAccountService(t)
	ctx := context.Background()
	_ = f.accounts.Create(ctx, &domain.Account{ID: "acc-1", Email: "a@example.com"})
	sc := identitydomain.SessionContext{AccountID: "acc-1"}

	for i := 0; i < 2; i++ {
		at, err := f.svc.ToggleTwoFactor(ctx, sc, false)
		if err != nil || at != nil {
			t.Fatalf("disable #%d = %v, %v; want nil", i, at, err)
		}
	}
	if status, _ := f.svc.TwoFactorStatus(ctx, sc); status != nil {
		t.Errorf("status = %v, want disabled", status)
	}
}

func TestTwoFactor_UnknownAccount(t *testing.T) {
	f := newTestAccountService(t)
	sc := identitydomain.SessionContext{AccountID: "ghost"}
	if _, err := f.svc.TwoFactorStatus(context.Background(), sc); err != ErrAccountNotFound {
		t.Errorf("status err = %v", err)
	}
	if _, err := f.svc.ToggleTwoFactor(context.Background(), sc, true); err != ErrAccountNotFound {
		t.Errorf("toggle err = %v", err)
	}
}

func TestDevicesDelegate(t *testing.T) {
	f := newTestAccountService(t)
	sc := identitydomain.SessionContext{AccountID: "acc-1", DeviceID: "fp-1"}
	list, err := f.svc.ListDevices(context.Background(), sc)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDevices = %v, %v", list, err)
	}
	if err := f.svc.RevokeDevice(context.Background(), sc, "fp-2"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	if len(f.devices.revoked) != 1 || f.devices.revoked[0] != "fp-2" {
		t.Errorf("revoked = %v", f.devices.revoked)
	}
}
