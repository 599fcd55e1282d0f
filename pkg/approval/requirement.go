package approval

import (
	"strings"
	"time"

	"github.com/costwarden/costwarden/pkg/safety"
)

// RoutingConfig tunes the risk-to-authority routing rules.
type RoutingConfig struct {
	// AutoApprovalCeilings caps the estimated savings an auto-approvable
	// risk level may carry, in dollars per month.
	AutoApprovalCeilings map[safety.RiskLevel]float64

	// SavingsThresholds raises the required authority when estimated
	// savings exceed a dollar amount, regardless of risk level.
	SavingsThresholds []SavingsThreshold

	// ProductionTags and CriticalTags drive the tag-based authority and
	// timeout escalation. Matching is case-insensitive over tag values.
	ProductionTags []string
	CriticalTags   []string

	// ProductionExtension and CriticalExtension are added to the timeout
	// when the matching tag vocabulary fires. Both apply when both match.
	ProductionExtension time.Duration
	CriticalExtension   time.Duration
}

// SavingsThreshold maps a savings floor to a minimum authority.
type SavingsThreshold struct {
	Amount    float64
	Authority Authority
}

// DefaultRoutingConfig returns the stock routing rules.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		AutoApprovalCeilings: map[safety.RiskLevel]float64{
			safety.RiskLow:    1000,
			safety.RiskMedium: 100,
		},
		SavingsThresholds: []SavingsThreshold{
			{Amount: 5000, Authority: AuthorityManager},
			{Amount: 25000, Authority: AuthorityDirector},
			{Amount: 100000, Authority: AuthorityExecutive},
		},
		ProductionTags:      []string{"production", "prod"},
		CriticalTags:        []string{"critical", "do-not-touch"},
		ProductionExtension: 24 * time.Hour,
		CriticalExtension:   48 * time.Hour,
	}
}

// riskRule is the base routing row for one risk level.
type riskRule struct {
	authority              Authority
	timeout                time.Duration
	requiresJustification  bool
	requiresRollbackReview bool
	requiresNotification   bool
	autoApprovalEligible   bool
}

// baseRule returns the routing row for a risk level.
func baseRule(level safety.RiskLevel) riskRule {
	switch level {
	case safety.RiskLow:
		return riskRule{
			authority:            AuthoritySystem,
			timeout:              24 * time.Hour,
			autoApprovalEligible: true,
		}
	case safety.RiskMedium:
		return riskRule{
			authority:            AuthorityEngineer,
			timeout:              48 * time.Hour,
			autoApprovalEligible: true,
		}
	case safety.RiskHigh:
		return riskRule{
			authority:              AuthorityManager,
			timeout:                72 * time.Hour,
			requiresJustification:  true,
			requiresRollbackReview: true,
			requiresNotification:   true,
		}
	case safety.RiskCritical:
		return riskRule{
			authority:              AuthorityDirector,
			timeout:                96 * time.Hour,
			requiresJustification:  true,
			requiresRollbackReview: true,
			requiresNotification:   true,
		}
	default:
		return baseRule(safety.RiskMedium)
	}
}

// DeriveRequirement computes the approval routing for one action. The base
// row comes from the risk level; savings magnitude and resource tags then
// independently raise the authority (never lower it) and extend the
// timeout. Auto-approval survives only when nothing escalated the base row
// and the savings sit under the level's ceiling.
func DeriveRequirement(cfg RoutingConfig, risk safety.RiskAssessment, action Action) ApprovalRequirement {
	rule := baseRule(risk.Level)

	req := ApprovalRequirement{
		Authority:              rule.authority,
		Timeout:                rule.timeout,
		RequiresJustification:  rule.requiresJustification,
		RequiresRollbackReview: rule.requiresRollbackReview,
		RequiresNotification:   rule.requiresNotification,
	}

	escalated := false

	for _, threshold := range cfg.SavingsThresholds {
		if action.EstimatedSavings >= threshold.Amount && !req.Authority.AtLeast(threshold.Authority) {
			req.Authority = threshold.Authority
			escalated = true
		}
	}

	if tagMatches(action.Metadata.Tags, cfg.CriticalTags) {
		req.Authority = maxAuthority(req.Authority, AuthorityDirector)
		req.Timeout += cfg.CriticalExtension
		req.RequiresNotification = true
		escalated = true
	}
	if tagMatches(action.Metadata.Tags, cfg.ProductionTags) {
		req.Authority = maxAuthority(req.Authority, AuthorityManager)
		req.Timeout += cfg.ProductionExtension
		req.RequiresNotification = true
		escalated = true
	}

	if ceiling, ok := cfg.AutoApprovalCeilings[risk.Level]; ok && rule.autoApprovalEligible {
		req.AutoApprovalCeiling = ceiling
		req.AutoApprovalEligible = !escalated && action.EstimatedSavings <= ceiling
	}

	return req
}

// tagMatches reports whether any tag value matches the vocabulary,
// case-insensitively.
func tagMatches(tags map[string]string, vocabulary []string) bool {
	for _, value := range tags {
		lowered := strings.ToLower(value)
		for _, marker := range vocabulary {
			if lowered == marker {
				return true
			}
		}
	}
	return false
}
