package safety

import (
	"time"

	"github.com/google/uuid"
)

// RollbackCapability describes how completely an operation can be undone.
type RollbackCapability string

const (
	// RollbackFull means the operation can be completely reversed.
	RollbackFull RollbackCapability = "FULL"

	// RollbackPartial means only some effects can be reversed, typically
	// through a backup taken before the mutation.
	RollbackPartial RollbackCapability = "PARTIAL"

	// RollbackNone means the operation is irreversible.
	RollbackNone RollbackCapability = "NONE"
)

// CapabilityFor maps an operation kind to its rollback capability.
// State-toggle and shape-change operations reverse cleanly; deletes with a
// backup are partial; terminate and database deletion are irreversible.
func CapabilityFor(operationKind string) RollbackCapability {
	switch operationKind {
	case "stop_instance", "start_instance", "resize_instance", "modify_storage", "apply_tags", "reschedule":
		return RollbackFull
	case "delete_volume", "delete_snapshot":
		return RollbackPartial
	case "terminate_instance", "delete_database", "purchase_reservation":
		return RollbackNone
	default:
		return RollbackNone
	}
}

// RollbackStep is one reversal action. Steps carry enough of the original
// state to undo the mutation without consulting the provider.
type RollbackStep struct {
	Order         int                    `json:"order"`
	ResourceID    string                 `json:"resource_id"`
	Operation     string                 `json:"operation"`
	StateSnapshot map[string]interface{} `json:"state_snapshot,omitempty"`
}

// RollbackPlan is a pre-computed reversal recipe. Steps are stored in
// execution order, which is the logical reverse of the original mutation.
type RollbackPlan struct {
	ID            string             `json:"id"`
	ExecutionID   string             `json:"execution_id"`
	ResourceID    string             `json:"resource_id"`
	OperationKind string             `json:"operation_kind"`
	Capability    RollbackCapability `json:"capability"`
	Steps         []RollbackStep     `json:"steps"`
	EstimatedTime time.Duration      `json:"estimated_time"`
	CreatedAt     time.Time          `json:"created_at"`
}

// reverseOperation maps an operation kind to the operation that undoes it.
func reverseOperation(operationKind string) string {
	switch operationKind {
	case "stop_instance":
		return "start_instance"
	case "start_instance":
		return "stop_instance"
	case "resize_instance":
		return "resize_instance"
	case "modify_storage":
		return "modify_storage"
	case "apply_tags":
		return "apply_tags"
	case "reschedule":
		return "reschedule"
	case "delete_volume":
		return "restore_volume"
	case "delete_snapshot":
		return "copy_snapshot"
	default:
		return ""
	}
}

// SynthesizePlan builds a rollback plan for an operation with capability
// other than NONE. Returns nil for irreversible operations.
func SynthesizePlan(executionID, resourceID, operationKind string, meta ResourceMetadata) *RollbackPlan {
	capability := CapabilityFor(operationKind)
	if capability == RollbackNone {
		return nil
	}

	snapshot := map[string]interface{}{
		"state": meta.State,
	}
	if meta.InstanceType != "" {
		snapshot["instance_type"] = meta.InstanceType
	}
	if len(meta.Tags) > 0 {
		tags := make(map[string]interface{}, len(meta.Tags))
		for k, v := range meta.Tags {
			tags[k] = v
		}
		snapshot["tags"] = tags
	}

	steps := []RollbackStep{
		{
			Order:         0,
			ResourceID:    resourceID,
			Operation:     reverseOperation(operationKind),
			StateSnapshot: snapshot,
		},
	}

	estimated := 2 * time.Minute
	if capability == RollbackPartial {
		// Partial restores go through a backup and take longer.
		estimated = 15 * time.Minute
	}

	return &RollbackPlan{
		ID:            uuid.New().String(),
		ExecutionID:   executionID,
		ResourceID:    resourceID,
		OperationKind: operationKind,
		Capability:    capability,
		Steps:         steps,
		EstimatedTime: estimated,
		CreatedAt:     time.Now().UTC(),
	}
}
