// Package audit records security events (sign-in, password and device changes) per account.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/audit/domain"
	auditrepo "consultancy-auth/backend/internal/audit/repository"
)

// Actions recorded by the auth core.
const (
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionLogout          = "logout"
	ActionEmailVerified   = "email_verified"
	ActionPasswordChange  = "password_change"
	ActionPasswordReset   = "password_reset"
	ActionEmailUpdate     = "email_update"
	ActionDeviceRevoke    = "device_revoke"
	ActionTwoFactorToggle = "twofa_toggle"
	ActionSudoGranted     = "sudo_granted"
	ActionAccountCreate   = "account_create"
)

// Resources recorded by the auth core.
const (
	ResourceAuth    = "auth"
	ResourceAccount = "account"
	ResourceDevice  = "device"
	ResourceSession = "session"
)

// Event is one audit entry as supplied by a caller.
type Event struct {
	OrganizationID string
	AccountID      string
	Action         string
	Resource       string
	IP             string
	Metadata       map[string]string
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged
// and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Sink receives every persisted audit entry (e.g. an OpenTelemetry log exporter).
type Sink interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// Logger implements AuditLogger using the audit repository and an optional sink.
type Logger struct {
	repo   auditrepo.Repository
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. repo and sink may be nil.
func NewLogger(repo auditrepo.Repository, sink Sink, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, sink: sink, logger: logger, now: time.Now}
}

// LogEvent writes one audit log entry.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	entry := &domain.AuditLog{
		ID:             uuid.New().String(),
		OrganizationID: e.OrganizationID,
		AccountID:      e.AccountID,
		Action:         e.Action,
		Resource:       e.Resource,
		IP:             e.IP,
		Metadata:       e.Metadata,
		CreatedAt:      l.now().UTC(),
	}
	if entry.IP == "" {
		entry.IP = "unknown"
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.logger.Warn("audit: failed to log event",
				zap.String("action", e.Action),
				zap.String("resource", e.Resource),
				zap.Error(err))
		}
	}
	if l.sink != nil {
		l.sink.Emit(ctx, entry)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, Event) {}
