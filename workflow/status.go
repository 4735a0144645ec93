// Package workflow implements a durable, event-driven DAG execution engine.
// Workflow instances are rooted task graphs whose progress is driven by task
// completion, correlated inbound events, or timer expiry. Tasks are plain
// data; all behavior is dispatched by the Engine, which holds no per-task
// state of its own.
package workflow

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusSubmitted  Status = "SUBMITTED"
	StatusExecuting  Status = "EXECUTING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailure    Status = "FAILURE"
	StatusSkipped    Status = "SKIPPED"
	StatusStopped    Status = "STOPPED"
)

// Terminal reports whether the status is one from which no further
// transition occurs: COMPLETED, FAILURE, SKIPPED, or STOPPED.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailure, StatusSkipped, StatusStopped:
		return true
	default:
		return false
	}
}

// TaskType is the structural role of a task within its workflow instance.
type TaskType string

const (
	TypeRoot              TaskType = "ROOT"
	TypeSubDAG            TaskType = "SUB_DAG"
	TypeLeaf              TaskType = "LEAF"
	TypeParallelComposite TaskType = "PARALLEL_COMPOSITE"
)

// Kind distinguishes the leaf behaviors (and the two non-leaf structural
// kinds) that share a TaskType. The engine switches on Kind to pick the
// execute/on_message implementation for a leaf task.
type Kind string

const (
	KindExecutor          Kind = "executor"
	KindKafkaCommand      Kind = "kafka_command"
	KindSensor            Kind = "sensor"
	KindKafkaListener     Kind = "kafka_listener"
	KindDecision          Kind = "decision"
	KindTrigger           Kind = "trigger"
	KindInterval          Kind = "interval"
	KindSkipOnMaxDuration Kind = "skip_on_max_duration"
	KindCompleteByTime    Kind = "complete_by_time"
	KindSystemTimer       Kind = "system_timer"
	KindSubDAG            Kind = "sub_dag"
	KindParallelComposite Kind = "parallel_composite"
	KindRoot              Kind = "root"
)

// OperatorType is the join policy for a ParallelComposite task.
type OperatorType string

const (
	OperatorJoinAll    OperatorType = "JOIN_ALL"
	OperatorAtLeastOne OperatorType = "ATLEAST_ONE"
)
