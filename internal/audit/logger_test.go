package audit

import (
	"context"
	"errors"
	"testing"

	"consultancy-auth/backend/internal/audit/domain"
)

type memRepo struct {
	entries []*domain.AuditLog
	err     error
}

func (m *memRepo) Create(_ context.Context, a *domain.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, a)
	return nil
}

func (m *memRepo) ListByAccount(context.Context, string, int, int) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

type memSink struct{ got []*domain.AuditLog }

func (s *memSink) Emit(_ context.Context, e *domain.AuditLog) { s.got = append(s.got, e) }

func TestLogEvent_PersistsAndEmits(t *testing.T) {
	repo := &memRepo{}
	sink := &memSink{}
	l := NewLogger(repo, sink, nil)

	l.LogEvent(context.Background(), Event{
		AccountID: "acc-1", Action: ActionLoginSuccess, Resource: ResourceAuth, IP: "10.0.0.1",
		Metadata: map[string]string{"device_id": "fp"},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("persisted = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("entry missing id or timestamp: %+v", e)
	}
	if e.Action != ActionLoginSuccess || e.IP != "10.0.0.1" || e.Metadata["device_id"] != "fp" {
		t.Errorf("entry = %+v", e)
	}
	if len(sink.got) != 1 || sink.got[0] != e {
		t.Error("sink should receive the persisted entry")
	}
}

func TestLogEvent_UnknownIP(t *testing.T) {
	repo := &memRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), Event{Action: ActionLoginFailure, Resource: ResourceAuth})
	if repo.entries[0].IP != "unknown" {
		t.Errorf("IP = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogEvent_RepoErrorIsSwallowed(t *testing.T) {
	sink := &memSink{}
	l := NewLogger(&memRepo{err: errors.New("db down")}, sink, nil)
	l.LogEvent(context.Background(), Event{Action: ActionLogout, Resource: ResourceSession})
	if len(sink.got) != 1 {
		t.Error("sink should still receive the entry when persistence fails")
	}
}

func TestLogEvent_NilRepo(t *testing.T) {
	NewLogger(nil, nil, nil).LogEvent(context.Background(), Event{Action: ActionLogout})
	Nop{}.LogEvent(context.Background(), Event{})
}
