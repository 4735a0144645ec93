package workflow

import (
	"context"
	"time"
)

// CorrelationKey identifies a correlation-index bucket: the runtime
// attribute name, its current value, and the stream the watching sensor is
// bound to (spec §3, §4.E — the stream suffix disambiguates the same
// attribute watched on several streams).
type CorrelationKey struct {
	Attr   string
	Value  string
	Stream string
}

// CorrelationMatch is one (workflow, task) pair yielded by a correlation
// lookup.
type CorrelationMatch struct {
	WorkflowID string
	TaskID     string
}

// TriggerRecord is a pending trigger entry keyed by (trigger_time,
// workflow_id, task_id), per spec §3's trigger index.
type TriggerRecord struct {
	WorkflowID  string
	TaskID      string
	TriggerTime time.Time
}

// Store is the durable collaborator (spec §6). Implementations live in the
// sibling store package; the engine only depends on this interface.
type Store interface {
	// UpdateInstance is an idempotent upsert keyed by instance.RootID.
	UpdateInstance(ctx context.Context, inst *Instance) error

	// RemoveRootInstance deletes a root instance with all descendants.
	RemoveRootInstance(ctx context.Context, rootID string) error

	// GetInstance is a random-access read by workflow (root) id.
	GetInstance(ctx context.Context, workflowID string) (*Instance, error)

	// StoreTrigger registers or refreshes a pending trigger.
	StoreTrigger(ctx context.Context, rec TriggerRecord) error

	// RemoveTrigger deletes a pending trigger. No error if absent.
	RemoveTrigger(ctx context.Context, workflowID, taskID string) error

	// DueTriggers yields every trigger with TriggerTime <= now, in
	// ascending time order.
	DueTriggers(ctx context.Context, now time.Time) ([]TriggerRecord, error)

	// UpdateCorrelationKey upserts the index entry for newKey, removing
	// oldKey first if it is non-zero. Implementations must perform both
	// halves atomically with respect to concurrent lookups.
	UpdateCorrelationKey(ctx context.Context, workflowID, taskID string, oldKey, newKey CorrelationKey) error

	// RemoveFromCorrelation deletes a single index entry, used during
	// root cleanup.
	RemoveFromCorrelation(ctx context.Context, workflowID, taskID string, key CorrelationKey) error

	// LookupCorrelation yields every (workflow, task) pair registered
	// under key, including pairs belonging to already-completed
	// workflows (needed for late events and reprocess_on_message).
	LookupCorrelation(ctx context.Context, key CorrelationKey) ([]CorrelationMatch, error)

	// GetMonitoringTask looks up the id of the companion monitor task for
	// taskID, if any was registered.
	GetMonitoringTask(ctx context.Context, workflowID, taskID string) (monitorID string, ok bool, err error)
}
