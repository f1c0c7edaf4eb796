package engine

import "context"

// StepUpInput is the login context the device-trust policy decides on.
type StepUpInput struct {
	AccountID      string
	Role           string
	TwoFAEnabled   bool
	HasPasskey     bool
	Method         string
	DeviceID       string
	IsKnownTrusted bool
}

// Evaluator decides whether a login must step up through two-factor verification.
type Evaluator interface {
	EvaluateStepUp(ctx context.Context, in StepUpInput) (bool, error)
}

// builtinStepUp mirrors the default Rego rule; used when policy evaluation fails.
func builtinStepUp(in StepUpInput) bool {
	return in.TwoFAEnabled && in.Method == "password" && !in.IsKnownTrusted
}
