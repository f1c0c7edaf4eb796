package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/template/django/v3"

	"consultancy-auth/backend/internal/notify"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[notify.Kind]string{
	notify.KindConfirmation:    "Confirm your email address",
	notify.KindUserCredentials: "Your account credentials",
	notify.KindResetPassword:   "Reset your password",
	notify.KindTwoFactorOTP:    "Your sign-in code",
}

// Renderer turns a notify.Message into a subject and HTML body.
type Renderer struct {
	engine    *django.Engine
	clientURL string
}

// NewRenderer loads the embedded templates. clientURL prefixes links in the mail body.
func NewRenderer(clientURL string) (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("mailer: load templates: %w", err)
	}
	return &Renderer{engine: engine, clientURL: strings.TrimSuffix(clientURL, "/")}, nil
}

// Render returns the subject and body for msg.
func (r *Renderer) Render(msg notify.Message) (string, string, error) {
	subject, ok := subjects[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("mailer: no template for kind %q", msg.Kind)
	}
	name := msg.RecipientName
	if name == "" {
		name = msg.RecipientEmail
	}
	binding := map[string]interface{}{
		"name":       name,
		"email":      msg.RecipientEmail,
		"client_url": r.clientURL,
	}
	for k, v := range msg.Payload {
		binding[k] = v
	}
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, string(msg.Kind), binding); err != nil {
		return "", "", fmt.Errorf("mailer: render %s: %w", msg.Kind, err)
	}
	return subject, buf.String(), nil
}
