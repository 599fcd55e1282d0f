package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := testEngine(t)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"production-termination",
		"protected-tags",
		"savings-sanity",
		"large-savings-review",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateAction_ProductionTermination(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		action      *ActionInput
		wantAllowed bool
		wantPolicy  string
	}{
		{
			name: "terminate production instance blocked",
			action: &ActionInput{
				ActionID:   "a-1",
				Operation:  "terminate_instance",
				ResourceID: "i-prod1",
				Tags:       map[string]string{"env": "production"},
			},
			wantAllowed: false,
			wantPolicy:  "production-termination",
		},
		{
			name: "terminate production instance forced",
			action: &ActionInput{
				ActionID:   "a-2",
				Operation:  "terminate_instance",
				ResourceID: "i-prod2",
				Tags:       map[string]string{"env": "prod"},
				Force:      true,
			},
			wantAllowed: true,
		},
		{
			name: "terminate dev instance allowed",
			action: &ActionInput{
				ActionID:   "a-3",
				Operation:  "terminate_instance",
				ResourceID: "i-dev1",
				Tags:       map[string]string{"env": "development"},
			},
			wantAllowed: true,
		},
		{
			name: "resize production instance allowed",
			action: &ActionInput{
				ActionID:   "a-4",
				Operation:  "resize_instance",
				ResourceID: "i-prod3",
				Tags:       map[string]string{"env": "production"},
			},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateAction(ctx, tt.action, nil)
			if err != nil {
				t.Fatalf("EvaluateAction() error = %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (violations: %+v)", result.Allowed, tt.wantAllowed, result.Violations)
			}
			if tt.wantPolicy != "" {
				found := false
				for _, v := range result.Violations {
					if v.Policy == tt.wantPolicy {
						found = true
					}
				}
				if !found {
					t.Errorf("expected violation from policy %s, got %+v", tt.wantPolicy, result.Violations)
				}
			}
		})
	}
}

func TestEvaluateAction_ProtectedTagsIgnoreForce(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	action := &ActionInput{
		ActionID:   "a-5",
		Operation:  "stop_instance",
		ResourceID: "i-protected",
		Tags:       map[string]string{"policy": "do-not-touch"},
		Force:      true,
	}

	result, err := eng.EvaluateAction(ctx, action, nil)
	if err != nil {
		t.Fatalf("EvaluateAction() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected protected resource to be blocked even with force")
	}
}

func TestEvaluateAction_SavingsSanity(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	action := &ActionInput{
		ActionID:         "a-6",
		Operation:        "resize_instance",
		ResourceID:       "i-cheap",
		EstimatedSavings: 500,
		CurrentCost:      100,
	}

	result, err := eng.EvaluateAction(ctx, action, nil)
	if err != nil {
		t.Fatalf("EvaluateAction() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected savings above current cost to be blocked")
	}
}

func TestEvaluateAction_LargeSavingsWarnsOnly(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	action := &ActionInput{
		ActionID:         "a-7",
		Operation:        "resize_instance",
		ResourceID:       "i-big",
		EstimatedSavings: 15000,
		CurrentCost:      50000,
	}

	result, err := eng.EvaluateAction(ctx, action, nil)
	if err != nil {
		t.Fatalf("EvaluateAction() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected warning-only violation to allow execution, got %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "large-savings-review" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected large-savings-review warning, got %+v", result.Violations)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	if err := eng.DisablePolicy("savings-sanity"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}

	action := &ActionInput{
		ActionID:         "a-8",
		Operation:        "resize_instance",
		ResourceID:       "i-cheap",
		EstimatedSavings: 500,
		CurrentCost:      100,
	}

	result, err := eng.EvaluateAction(ctx, action, nil)
	if err != nil {
		t.Fatalf("EvaluateAction() error = %v", err)
	}
	if !result.Allowed {
		t.Error("expected action to pass after disabling savings-sanity")
	}

	if err := eng.EnablePolicy("savings-sanity"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}

	result, err = eng.EvaluateAction(ctx, action, nil)
	if err != nil {
		t.Fatalf("EvaluateAction() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected action to be blocked after re-enabling savings-sanity")
	}
}

func TestDisableUnknownPolicy(t *testing.T) {
	eng := testEngine(t)
	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
