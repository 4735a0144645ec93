package workflow

import "time"

// Task is the common record every task kind specializes. It is pure data:
// no methods on Task invoke business logic. Behavior lives in the Engine and
// in handlers resolved by HandlerName from the registries in handlers.go.
type Task struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	// RootDAG is the id of the first child to run, set on SUB_DAG and ROOT
	// tasks. Empty for leaves.
	RootDAG string `json:"root_dag,omitempty"`

	// NextDAGs is the ordered sequence of successor task ids within the
	// same parent scope.
	NextDAGs []string `json:"next_dags,omitempty"`

	TaskType TaskType `json:"task_type"`
	Kind     Kind     `json:"kind"`
	Status   Status   `json:"status"`

	TimeCreated   time.Time `json:"time_created"`
	TimeSubmitted time.Time `json:"time_submitted,omitempty"`
	TimeCompleted time.Time `json:"time_completed,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`

	// Sensor / listener fields.
	CorrelatableKey    string `json:"correlatable_key,omitempty"`
	Stream             string `json:"stream,omitempty"`
	AllowSkipTo        bool   `json:"allow_skip_to,omitempty"`
	ReprocessOnMessage bool   `json:"reprocess_on_message,omitempty"`
	MatchOnlyOne       bool   `json:"match_only_one,omitempty"`

	// Trigger / interval fields.
	TimeToExecute         time.Time     `json:"time_to_execute,omitempty"`
	IntervalExecutePeriod time.Duration `json:"interval_execute_period,omitempty"`
	TimeToForceComplete   time.Time     `json:"time_to_force_complete,omitempty"`

	// Monitoring fields (SkipOnMaxDuration, CompleteByTime).
	MonitoredTaskID string        `json:"monitored_task_id,omitempty"`
	MaxRunDuration  time.Duration `json:"max_run_duration,omitempty"`

	// CompanionMonitorID names a monitoring task that should be started
	// alongside this ROOT task's root_dag (SUB_DAG tasks ignore it), implementing
	// MonitoredProcessTemplateDAGInstance's complete_by_time wiring.
	CompanionMonitorID string `json:"companion_monitor_id,omitempty"`

	// ParallelChildren is the set of child ids a PARALLEL_COMPOSITE task
	// starts together, independent of NextDAGs. Order is preserved for
	// deterministic start order but membership, not order, is semantic.
	ParallelChildren []string     `json:"parallel_children,omitempty"`
	Operator         OperatorType `json:"operator,omitempty"`

	// HandlerName resolves the pluggable business logic for this task
	// (executor body, decision evaluator, interval predicate, or
	// on_message handler) via the registries in handlers.go. Keeping this
	// a string rather than a closure keeps Task serializable.
	HandlerName string `json:"handler_name,omitempty"`

	// Params carries kind-specific static configuration, e.g. an
	// outbound payload template for a KafkaCommandTask.
	Params map[string]any `json:"params,omitempty"`
}

// IsDue reports whether a trigger-family task's gating time has passed.
func (t *Task) IsDue(now time.Time) bool {
	return !now.Before(t.TimeToExecute)
}

// isTriggerFamily reports whether the task's completion participates in the
// trigger index (store.StoreTrigger / store.RemoveTrigger).
func (t *Task) isTriggerFamily() bool {
	switch t.Kind {
	case KindTrigger, KindInterval, KindSkipOnMaxDuration, KindCompleteByTime:
		return true
	default:
		return false
	}
}
