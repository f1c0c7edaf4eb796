// Package notify carries outbound user notifications (mail) from the auth core to a delivery worker.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind selects the mail template the worker renders.
type Kind string

const (
	KindConfirmation    Kind = "confirmation"
	KindUserCredentials Kind = "user-credentials"
	KindResetPassword   Kind = "reset-password"
	KindTwoFactorOTP    Kind = "twofa-otp"
)

// Valid reports whether k is a known notification kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConfirmation, KindUserCredentials, KindResetPassword, KindTwoFactorOTP:
		return true
	}
	return false
}

// Message is one notification request. Payload keys are template variables (code, token, password, ...).
type Message struct {
	Kind           Kind              `json:"kind"`
	RecipientEmail string            `json:"recipientEmail"`
	RecipientName  string            `json:"recipientName"`
	Payload        map[string]string `json:"payload,omitempty"`
}

// Notifier sends a Message. Implementations may block on I/O; callers that must not wait use Async.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

const asyncTimeout = 5 * time.Second

// Async sends msg on a detached goroutine with its own timeout. Failures are logged, never returned.
func Async(n Notifier, logger *zap.Logger, msg Message) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if err := n.Notify(ctx, msg); err != nil {
			logger.Warn("notification dispatch failed",
				zap.String("kind", string(msg.Kind)),
				zap.String("recipient", msg.RecipientEmail),
				zap.Error(err))
		}
	}()
}

// LogNotifier logs notifications instead of delivering them. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a Notifier that writes one log line per message. Payload values are not logged.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.RecipientEmail))
	return nil
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
