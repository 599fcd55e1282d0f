package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in guardrail policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		productionTerminationPolicy(),
		protectedTagsPolicy(),
		savingsSanityPolicy(),
		largeSavingsReviewPolicy(),
	}
}

// productionTerminationPolicy blocks destructive operations on production
// resources unless the operator forces them.
func productionTerminationPolicy() Policy {
	return Policy{
		Name:        "production-termination",
		Description: "Blocks terminate and delete operations on production-tagged resources unless forced",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"production", "destructive"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package costwarden.guardrails.production

import rego.v1

destructive_operations := {"terminate_instance", "delete_volume", "delete_snapshot", "delete_database"}

production_values := {"production", "prod"}

deny contains violation if {
	input.action
	action := input.action
	destructive_operations[action.operation]
	some _, value in action.tags
	production_values[lower(value)]
	not action.force
	violation := {
		"message": sprintf("Operation %s on production resource %s requires force", [action.operation, action.resource_id]),
		"severity": "error",
		"resource": action.resource_id,
	}
}
`,
	}
}

// protectedTagsPolicy blocks any mutation of resources carrying a
// do-not-touch tag. This one cannot be forced.
func protectedTagsPolicy() Policy {
	return Policy{
		Name:        "protected-tags",
		Description: "Blocks all operations on resources tagged do-not-touch, regardless of force",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"protection"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package costwarden.guardrails.protected

import rego.v1

protected_values := {"do-not-touch", "do_not_touch", "protected"}

deny contains violation if {
	input.action
	action := input.action
	some _, value in action.tags
	protected_values[lower(value)]
	violation := {
		"message": sprintf("Resource %s carries a protection tag and may not be modified", [action.resource_id]),
		"severity": "critical",
		"resource": action.resource_id,
	}
}
`,
	}
}

// savingsSanityPolicy rejects actions whose projected savings exceed the
// resource's current cost.
func savingsSanityPolicy() Policy {
	return Policy{
		Name:        "savings-sanity",
		Description: "Rejects actions claiming savings greater than the resource's current monthly cost",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"validation"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package costwarden.guardrails.savings

import rego.v1

deny contains violation if {
	input.action
	action := input.action
	action.current_cost > 0
	action.estimated_savings > action.current_cost
	violation := {
		"message": sprintf("Estimated savings $%.2f exceed current monthly cost $%.2f for %s", [action.estimated_savings, action.current_cost, action.resource_id]),
		"severity": "error",
		"resource": action.resource_id,
	}
}
`,
	}
}

// largeSavingsReviewPolicy flags unusually large savings for human review
// without blocking the action.
func largeSavingsReviewPolicy() Policy {
	return Policy{
		Name:        "large-savings-review",
		Description: "Warns when estimated monthly savings exceed $10,000",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"review"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package costwarden.guardrails.review

import rego.v1

deny contains violation if {
	input.action
	action := input.action
	action.estimated_savings > 10000
	violation := {
		"message": sprintf("Estimated savings $%.2f for %s warrant manual review", [action.estimated_savings, action.resource_id]),
		"severity": "warning",
		"resource": action.resource_id,
	}
}
`,
	}
}
