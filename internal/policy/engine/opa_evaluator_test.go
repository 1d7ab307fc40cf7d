package engine

import (
	"context"
	"testing"

	"migrant-health-access/backend/internal/policy/domain"
)

type fakePolicyRepo struct {
	active *domain.Policy
	err    error
}

func (r *fakePolicyRepo) GetActive(ctx context.Context) (*domain.Policy, error) {
	return r.active, r.err
}

func (r *fakePolicyRepo) Create(ctx context.Context, p *domain.Policy) error { return nil }

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := NewOPAEvaluator(nil)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestEvaluateConsent_DefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator(nil)

	res, err := e.EvaluateConsent(context.Background(), "clinician")
	if err != nil {
		t.Fatalf("EvaluateConsent: %v", err)
	}
	if !res.AllowRequest {
		t.Error("clinician should be allowed by the default policy")
	}
	if res.MaxVerifyAttempts != 5 {
		t.Errorf("MaxVerifyAttempts = %d, want 5", res.MaxVerifyAttempts)
	}
	if res.MaxPendingPerPair != 3 {
		t.Errorf("MaxPendingPerPair = %d, want 3", res.MaxPendingPerPair)
	}
	if res.GrantValidMinutes != 1440 {
		t.Errorf("GrantValidMinutes = %d, want 1440", res.GrantValidMinutes)
	}
}

func TestEvaluateConsent_UnknownRoleDenied(t *testing.T) {
	e := NewOPAEvaluator(nil)

	res, err := e.EvaluateConsent(context.Background(), "receptionist")
	if err != nil {
		t.Fatalf("EvaluateConsent: %v", err)
	}
	if res.AllowRequest {
		t.Error("unknown role should be denied by the default policy")
	}
}

func TestEvaluateConsent_ActivePolicyOverride(t *testing.T) {
	custom := `package mha.consent

default allow_request = false
default max_verify_attempts = 2
default max_pending_per_pair = 1
default grant_valid_minutes = 60

allow_request if {
	input.requester.role == "nurse"
}
`
	e := NewOPAEvaluator(&fakePolicyRepo{active: &domain.Policy{ID: "p1", Rego: custom, Active: true}})

	res, err := e.EvaluateConsent(context.Background(), "nurse")
	if err != nil {
		t.Fatalf("EvaluateConsent: %v", err)
	}
	if !res.AllowRequest {
		t.Error("nurse should be allowed by the custom policy")
	}
	if res.MaxVerifyAttempts != 2 {
		t.Errorf("MaxVerifyAttempts = %d, want 2", res.MaxVerifyAttempts)
	}
	if res.GrantValidMinutes != 60 {
		t.Errorf("GrantValidMinutes = %d, want 60", res.GrantValidMinutes)
	}

	res, err = e.EvaluateConsent(context.Background(), "clinician")
	if err != nil {
		t.Fatalf("EvaluateConsent: %v", err)
	}
	if res.AllowRequest {
		t.Error("custom policy replaces the default; clinician is no longer allowed")
	}
}

func TestEvaluateConsent_BrokenPolicyFallsBackToDefaults(t *testing.T) {
	e := NewOPAEvaluator(&fakePolicyRepo{active: &domain.Policy{ID: "p1", Rego: "package mha.consent\n\nthis is not rego"}})

	res, err := e.EvaluateConsent(context.Background(), "clinician")
	if err != nil {
		t.Fatalf("EvaluateConsent: %v", err)
	}
	if !res.AllowRequest || res.MaxVerifyAttempts != 5 {
		t.Errorf("broken policy should fall back to defaults, got %+v", res)
	}
}
