package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"migrant-health-access/backend/internal/policy/repository"
)

// DefaultRegoPolicy is the compiled-in consent policy. Clinicians and admins
// may run consent flows; five mismatched codes deny a request; at most three
// requests may be pending per pair; a grant lapses 24 hours after verification.
const DefaultRegoPolicy = `package mha.consent

default allow_request = false
default max_verify_attempts = 5
default max_pending_per_pair = 3
default grant_valid_minutes = 1440

allow_request if {
	input.requester.role == "clinician"
}

allow_request if {
	input.requester.role == "admin"
}
`

// OPAEvaluator evaluates consent policies using OPA Rego. An active policy
// stored in the repository replaces the default module; evaluation failures
// fall back to the compiled-in defaults rather than failing the consent flow
// open or closed unpredictably.
type OPAEvaluator struct {
	policyRepo repository.Repository
}

// NewOPAEvaluator returns an OPA-based consent policy evaluator.
// policyRepo may be nil; then only the default policy is used.
func NewOPAEvaluator(policyRepo repository.Repository) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and
// evaluate the default policy. Does not touch the database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": DefaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query("data.mha.consent.allow_request"),
		rego.Compiler(compiler),
		rego.Input(buildInput("clinician")),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateConsent evaluates the consent policy for the given requester role.
func (e *OPAEvaluator) EvaluateConsent(ctx context.Context, requesterRole string) (ConsentResult, error) {
	module := DefaultRegoPolicy
	if e.policyRepo != nil {
		active, err := e.policyRepo.GetActive(ctx)
		if err != nil {
			log.Printf("policy: failed to load active policy: %v", err)
		} else if active != nil && active.Rego != "" {
			module = active.Rego
		}
	}

	result, err := e.evaluate(ctx, module, requesterRole)
	if err != nil {
		log.Printf("policy: evaluation failed: %v, using defaults", err)
		return defaultResult(requesterRole), nil
	}
	return result, nil
}

func (e *OPAEvaluator) evaluate(ctx context.Context, module, requesterRole string) (ConsentResult, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": module})
	if err != nil {
		return ConsentResult{}, fmt.Errorf("compile policy: %w", err)
	}
	input := buildInput(requesterRole)
	out := defaultResult(requesterRole)

	if v, ok := evalBool(ctx, compiler, input, "data.mha.consent.allow_request"); ok {
		out.AllowRequest = v
	}
	if v, ok := evalInt(ctx, compiler, input, "data.mha.consent.max_verify_attempts"); ok && v > 0 {
		out.MaxVerifyAttempts = v
	}
	if v, ok := evalInt(ctx, compiler, input, "data.mha.consent.max_pending_per_pair"); ok && v > 0 {
		out.MaxPendingPerPair = v
	}
	if v, ok := evalInt(ctx, compiler, input, "data.mha.consent.grant_valid_minutes"); ok {
		out.GrantValidMinutes = v
	}
	return out, nil
}

func buildInput(requesterRole string) map[string]interface{} {
	return map[string]interface{}{
		"requester": map[string]interface{}{
			"role": requesterRole,
		},
	}
}

func defaultResult(requesterRole string) ConsentResult {
	return ConsentResult{
		AllowRequest:      requesterRole == "clinician" || requesterRole == "admin",
		MaxVerifyAttempts: 5,
		MaxPendingPerPair: 3,
		GrantValidMinutes: 1440,
	}
}

func evalBool(ctx context.Context, compiler *ast.Compiler, input map[string]interface{}, query string) (bool, bool) {
	rs, err := rego.New(
		rego.Query(query),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, false
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	return v, ok
}

func evalInt(ctx context.Context, compiler *ast.Compiler, input map[string]interface{}, query string) (int, bool) {
	rs, err := rego.New(
		rego.Query(query),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return 0, false
	}
	switch v := rs[0].Expressions[0].Value.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
