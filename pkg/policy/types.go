package policy

import (
	"time"
)

// Severity represents the severity level of a guardrail violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block execution.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be overridden.
	SeverityCritical Severity = "critical"
)

// Policy represents a guardrail rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single guardrail violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// ResourceID is the resource that violated the policy.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the outcome of a guardrail evaluation.
type Result struct {
	// Allowed indicates if the action may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists all guardrail violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the action.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ActionInput is the policy-facing view of an optimization action. It keeps
// this package decoupled from the execution engine's types.
type ActionInput struct {
	// ActionID is the optimization action identifier.
	ActionID string `json:"action_id"`

	// Operation is the mutation kind, e.g. "terminate_instance".
	Operation string `json:"operation"`

	// ResourceID identifies the target resource.
	ResourceID string `json:"resource_id"`

	// ResourceType is the service family, e.g. "compute".
	ResourceType string `json:"resource_type"`

	// Region is the resource's region.
	Region string `json:"region,omitempty"`

	// Tags are the resource's tags.
	Tags map[string]string `json:"tags,omitempty"`

	// EstimatedSavings is the projected monthly savings in dollars.
	EstimatedSavings float64 `json:"estimated_savings"`

	// CurrentCost is the resource's current monthly cost in dollars.
	CurrentCost float64 `json:"current_cost"`

	// Force indicates operator override of soft guardrails.
	Force bool `json:"force"`
}

// Input is the full document handed to Rego evaluation.
type Input struct {
	// Action is the optimization action being evaluated.
	Action *ActionInput `json:"action"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for guardrail evaluation.
type Context struct {
	// Requester is the user or system requesting the action.
	Requester string `json:"requester,omitempty"`

	// Environment is the environment (e.g., "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`
}

// Bundle represents a collection of related policies.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}
