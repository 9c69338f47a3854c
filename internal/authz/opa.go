// Package authz evaluates endpoint authorization with OPA Rego. Admin
// principals are allowed everything; other principals need the action in their
// permission snapshot.
package authz

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.reservo.authz.allow"

// Default Rego policy. Operators can replace it with their own module as long
// as it defines reservo.authz.allow.
const defaultRegoPolicy = `package reservo.authz

default allow = false

allow if {
	input.principal.kind == "admin"
}

allow if {
	some p in input.principal.permissions
	p == input.action
}
`

// Input is the decision request handed to the policy.
type Input struct {
	Kind        string   `json:"kind"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Action      string   `json:"action"`
}

// Evaluator authorizes actions against a compiled Rego policy.
type Evaluator struct {
	query rego.PreparedEvalQuery
}

// NewEvaluator compiles the given Rego module and prepares the allow query.
// An empty module selects the built-in default policy.
func NewEvaluator(ctx context.Context, module string) (*Evaluator, error) {
	if module == "" {
		module = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare authz query: %w", err)
	}
	return &Evaluator{query: q}, nil
}

// Authorize evaluates whether the principal may perform action. Fails closed:
// any evaluation problem denies.
func (e *Evaluator) Authorize(ctx context.Context, in Input) (bool, error) {
	input := map[string]interface{}{
		"principal": map[string]interface{}{
			"kind":        in.Kind,
			"role":        in.Role,
			"permissions": in.Permissions,
		},
		"action": in.Action,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval authz policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, nil
	}
	return allowed, nil
}

// HealthCheck verifies the policy evaluates with a minimal input. Returns nil
// on success.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Authorize(ctx, Input{Kind: "client", Action: "healthcheck"})
	return err
}
