package safety

import (
	"strings"
)

// RiskLevel classifies the potential harm of a mutating operation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// riskRank returns the ordinal position of a risk level. The switch is
// exhaustive so a new level fails loudly here.
func riskRank(level RiskLevel) int {
	switch level {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 3
	}
}

// riskFromRank converts a rank back to a level, capping at CRITICAL.
func riskFromRank(rank int) RiskLevel {
	switch {
	case rank <= 0:
		return RiskLow
	case rank == 1:
		return RiskMedium
	case rank == 2:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// AtLeast reports whether the level is at or above the threshold.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return riskRank(r) >= riskRank(threshold)
}

// ResourceMetadata describes the resource an operation targets, as supplied
// by the discovery collaborator.
type ResourceMetadata struct {
	Tags         map[string]string `json:"tags,omitempty"`
	InstanceType string            `json:"instance_type,omitempty"`
	State        string            `json:"state,omitempty"`
	Region       string            `json:"region,omitempty"`
	MonthlyCost  float64           `json:"monthly_cost"`
}

// RiskAssessment is the outcome of scoring one operation.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Base    RiskLevel `json:"base"`
	Factors []string  `json:"factors,omitempty"`
}

// AssessorConfig tunes the escalation factors.
type AssessorConfig struct {
	// MonthlyCostThreshold escalates risk one level when exceeded.
	MonthlyCostThreshold float64

	// ProductionTags are tag values marking production workloads (+1 level).
	ProductionTags []string

	// CriticalTags are tag values marking critical workloads (+2 levels).
	CriticalTags []string
}

// DefaultAssessorConfig returns the standard escalation configuration.
func DefaultAssessorConfig() AssessorConfig {
	return AssessorConfig{
		MonthlyCostThreshold: 1000,
		ProductionTags:       []string{"production", "prod"},
		CriticalTags:         []string{"critical", "do-not-touch"},
	}
}

// Assessor scores mutating operations.
type Assessor struct {
	cfg AssessorConfig
}

// NewAssessor creates a risk assessor.
func NewAssessor(cfg AssessorConfig) *Assessor {
	if len(cfg.ProductionTags) == 0 {
		cfg.ProductionTags = DefaultAssessorConfig().ProductionTags
	}
	if len(cfg.CriticalTags) == 0 {
		cfg.CriticalTags = DefaultAssessorConfig().CriticalTags
	}
	if cfg.MonthlyCostThreshold == 0 {
		cfg.MonthlyCostThreshold = DefaultAssessorConfig().MonthlyCostThreshold
	}
	return &Assessor{cfg: cfg}
}

// baseRisk maps an operation kind to its base risk level. Irreversible
// deletes default HIGH, shape changes MEDIUM, reversible or read-adjacent
// operations LOW. Unknown kinds are treated as MEDIUM.
func baseRisk(operationKind string) RiskLevel {
	switch operationKind {
	case "terminate_instance", "delete_volume", "delete_snapshot", "delete_database":
		return RiskHigh
	case "resize_instance", "modify_storage", "stop_instance", "reschedule":
		return RiskMedium
	case "start_instance", "apply_tags", "purchase_reservation":
		return RiskLow
	default:
		return RiskMedium
	}
}

// largeSizeMarkers are instance-type fragments that indicate a large
// resource footprint.
var largeSizeMarkers = []string{"xlarge", "metal", ".large"}

// AssessRisk scores an operation against its target resource. Escalation
// factors are additive level shifts on top of the base risk, capped at
// CRITICAL.
func (a *Assessor) AssessRisk(operationKind string, meta ResourceMetadata) RiskAssessment {
	base := baseRisk(operationKind)
	rank := riskRank(base)
	var factors []string

	if shift, factor := a.tagShift(meta.Tags); shift > 0 {
		rank += shift
		factors = append(factors, factor)
	}

	if meta.MonthlyCost > a.cfg.MonthlyCostThreshold {
		rank++
		factors = append(factors, "high_monthly_cost")
	}

	if isLargeInstance(meta.InstanceType) {
		rank++
		factors = append(factors, "large_instance")
	}

	return RiskAssessment{
		Level:   riskFromRank(rank),
		Base:    base,
		Factors: factors,
	}
}

// tagShift returns the level shift from resource tags. A critical tag
// dominates a production tag; they do not stack.
func (a *Assessor) tagShift(tags map[string]string) (int, string) {
	for _, value := range tags {
		lower := strings.ToLower(value)
		for _, marker := range a.cfg.CriticalTags {
			if lower == marker {
				return 2, "critical_tag"
			}
		}
	}
	for _, value := range tags {
		lower := strings.ToLower(value)
		for _, marker := range a.cfg.ProductionTags {
			if lower == marker {
				return 1, "production_tag"
			}
		}
	}
	return 0, ""
}

// isLargeInstance reports whether the instance type matches the large-size
// vocabulary.
func isLargeInstance(instanceType string) bool {
	lower := strings.ToLower(instanceType)
	for _, marker := range largeSizeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
