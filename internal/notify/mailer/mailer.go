// Package mailer renders notification messages and delivers them through an HTTP mail relay.
package mailer

import (
	"context"

	"go.uber.org/zap"

	"consultancy-auth/backend/internal/notify"
)

// Sender delivers a rendered Mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// Mailer implements notify.Notifier by rendering and sending synchronously. The worker uses it
// for messages read from Kafka.
type Mailer struct {
	renderer *Renderer
	sender   Sender
	from     string
	logger   *zap.Logger
}

// New returns a Mailer. A nil logger is replaced by a no-op logger.
func New(renderer *Renderer, sender Sender, from string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{renderer: renderer, sender: sender, from: from, logger: logger}
}

func (m *Mailer) Notify(ctx context.Context, msg notify.Message) error {
	subject, body, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, Mail{From: m.from, To: msg.RecipientEmail, Subject: subject, HTML: body}); err != nil {
		return err
	}
	m.logger.Info("mail delivered", zap.String("kind", string(msg.Kind)), zap.String("recipient", msg.RecipientEmail))
	return nil
}
