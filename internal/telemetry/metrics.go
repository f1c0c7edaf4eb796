// Package telemetry holds the auth service's OpenTelemetry instruments. Provider setup lives in
// the otel subpackage; delivery log shipping for the mail worker lives in loki.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "consultancy-auth/auth"

// Login outcomes recorded on auth.login.attempts.
const (
	OutcomeAuthenticated    = "authenticated"
	OutcomeStepUp           = "step_up"
	OutcomeVerificationSent = "verification_sent"
	OutcomeFailed           = "failed"
)

// AuthMetrics records auth counters. The zero value and nil are no-ops.
type AuthMetrics struct {
	loginAttempts  metric.Int64Counter
	stepUp         metric.Int64Counter
	refreshRejects metric.Int64Counter
	otpIssued      metric.Int64Counter
}

// NewAuthMetrics creates the counters on meter. A nil meter uses the global MeterProvider.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		m   AuthMetrics
		err error
	)
	if m.loginAttempts, err = meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.stepUp, err = meter.Int64Counter("auth.login.step_up",
		metric.WithDescription("Logins that required two-factor step-up")); err != nil {
		return nil, err
	}
	if m.refreshRejects, err = meter.Int64Counter("auth.refresh.rejected",
		metric.WithDescription("Refresh attempts rejected by reason")); err != nil {
		return nil, err
	}
	if m.otpIssued, err = meter.Int64Counter("auth.otp.issued",
		metric.WithDescription("Verification codes issued by type")); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoginAttempt records one login with its outcome.
func (m *AuthMetrics) LoginAttempt(ctx context.Context, outcome string) {
	if m == nil || m.loginAttempts == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == OutcomeStepUp {
		m.stepUp.Add(ctx, 1)
	}
}

// RefreshRejected records a refused refresh.
func (m *AuthMetrics) RefreshRejected(ctx context.Context, reason string) {
	if m == nil || m.refreshRejects == nil {
		return
	}
	m.refreshRejects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// OTPIssued records an issued verification code of the given type.
func (m *AuthMetrics) OTPIssued(ctx context.Context, kind string) {
	if m == nil || m.otpIssued == nil {
		return
	}
	m.otpIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}
