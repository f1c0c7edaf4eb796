package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "consultancy-auth/backend/internal/audit/domain"
)

const instrumentationName = "consultancy-auth/audit"

// AuditEmitter forwards audit entries as OTel log records.
type AuditEmitter struct {
	logger otellog.Logger
}

// NewAuditEmitter returns an emitter over provider. Returns nil if provider is nil so the audit
// logger skips the sink.
func NewAuditEmitter(provider *sdklog.LoggerProvider) *AuditEmitter {
	if provider == nil {
		return nil
	}
	return NewAuditEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewAuditEmitterWithLogger wraps an otellog.Logger directly.
func NewAuditEmitterWithLogger(logger otellog.Logger) *AuditEmitter {
	return &AuditEmitter{logger: logger}
}

// Emit converts entry into a log record. Metadata values become attributes prefixed with "meta.".
func (e *AuditEmitter) Emit(ctx context.Context, entry *auditdomain.AuditLog) {
	if e == nil || entry == nil {
		return
	}
	rec := otellog.Record{}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(entry.Action))
	rec.AddAttributes(
		otellog.String("audit.action", entry.Action),
		otellog.String("audit.resource", entry.Resource),
		otellog.String("client.ip", entry.IP),
	)
	if entry.AccountID != "" {
		rec.AddAttributes(otellog.String("account_id", entry.AccountID))
	}
	if entry.OrganizationID != "" {
		rec.AddAttributes(otellog.String("organization_id", entry.OrganizationID))
	}
	for k, v := range entry.Metadata {
		rec.AddAttributes(otellog.String("meta."+k, v))
	}
	e.logger.Emit(ctx, rec)
}
