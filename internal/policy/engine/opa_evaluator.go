package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const stepUpQuery = "data.consultancy.device_trust.step_up_required"

// DefaultRegoPolicy requires two-factor verification for password logins from devices
// that are not yet trusted, when the account has 2FA enabled.
const DefaultRegoPolicy = `package consultancy.device_trust

default step_up_required := false

step_up_required if {
	input.account.twofa_enabled
	input.login.method == "password"
	not input.device.is_known_trusted
}
`

// OPAEvaluator evaluates the device-trust policy using OPA Rego. The policy is compiled
// once at construction.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty) and returns an evaluator.
func NewOPAEvaluator(ctx context.Context, policy string, logger *zap.Logger) (*OPAEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"device_trust.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(stepUpQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: pq, logger: logger}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns the default policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(StepUpInput{Method: "password"})))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateStepUp returns whether the login described by in must pass two-factor
// verification. If evaluation fails the built-in rule decides and the failure is logged.
func (e *OPAEvaluator) EvaluateStepUp(ctx context.Context, in StepUpInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		e.logger.Warn("policy evaluation failed, using built-in rule", zap.Error(err))
		return builtinStepUp(in), nil
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return builtinStepUp(in), nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		e.logger.Warn("policy returned non-boolean step_up_required, using built-in rule")
		return builtinStepUp(in), nil
	}
	return v, nil
}

func buildInput(in StepUpInput) map[string]interface{} {
	return map[string]interface{}{
		"account": map[string]interface{}{
			"id":            in.AccountID,
			"role":          in.Role,
			"twofa_enabled": in.TwoFAEnabled,
			"has_passkey":   in.HasPasskey,
		},
		"login": map[string]interface{}{
			"method": in.Method,
		},
		"device": map[string]interface{}{
			"id":               in.DeviceID,
			"is_known_trusted": in.IsKnownTrusted,
		},
	}
}
