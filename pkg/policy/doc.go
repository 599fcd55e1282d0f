// Package policy provides Open Policy Agent (OPA) guardrails for CostWarden.
//
// Guardrails are Rego policies evaluated against an optimization action
// before it executes. Violations of error or critical severity block the
// action; warnings are surfaced but do not block. Built-in guardrails cover
// production protection, do-not-touch tags, and savings sanity checks, and
// custom policies can be loaded from .rego or .json files with hot reload.
//
// Creating a guardrail engine:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating an action:
//
//	result, err := eng.EvaluateAction(ctx, &policy.ActionInput{
//	    Operation:  "terminate_instance",
//	    ResourceID: "i-0abc123",
//	    Tags:       map[string]string{"env": "production"},
//	}, nil)
//	if !result.Allowed {
//	    // surface result.Violations to the operator
//	}
package policy
