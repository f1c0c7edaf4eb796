// Package devotp records issued verification codes in memory so they can be read back at
// GET /dev/otp. Only wired when OTP_RETURN_TO_CLIENT is set outside production.
package devotp

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"consultancy-auth/backend/internal/notify"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
)

// Store holds the latest plain code per (email, type).
type Store interface {
	Put(ctx context.Context, email string, t otpdomain.Type, code string, expiresAt time.Time)
	// Get returns the code if present and not expired.
	Get(ctx context.Context, email string, t otpdomain.Type) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

func key(email string, t otpdomain.Type) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + string(t)
}

func (s *MemoryStore) Put(_ context.Context, email string, t otpdomain.Type, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(email, t)] = entry{code: code, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(_ context.Context, email string, t otpdomain.Type) (string, bool) {
	k := key(email, t)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// kindTypes maps the notification kinds that carry a code to their verification type.
var kindTypes = map[notify.Kind]otpdomain.Type{
	notify.KindConfirmation: otpdomain.TypeEmailVerification,
	notify.KindTwoFactorOTP: otpdomain.TypeTwoFactor,
}

// Recorder is a notify.Notifier that records codes into a Store before delegating.
type Recorder struct {
	next  notify.Notifier
	store Store
	now   func() time.Time
}

// NewRecorder wraps next. next may be nil, in which case messages are only recorded.
func NewRecorder(next notify.Notifier, store Store) *Recorder {
	return &Recorder{next: next, store: store, now: time.Now}
}

func (r *Recorder) Notify(ctx context.Context, msg notify.Message) error {
	if t, ok := kindTypes[msg.Kind]; ok {
		if code := msg.Payload["code"]; code != "" {
			ttl := 5 * time.Minute
			if mins, err := strconv.Atoi(msg.Payload["expires_in_minutes"]); err == nil && mins > 0 {
				ttl = time.Duration(mins) * time.Minute
			}
			r.store.Put(ctx, msg.RecipientEmail, t, code, r.now().Add(ttl))
		}
	}
	if r.next == nil {
		return nil
	}
	return r.next.Notify(ctx, msg)
}
