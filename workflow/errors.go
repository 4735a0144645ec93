package workflow

import "errors"

// Sentinel errors implementing the §7 error taxonomy. Callers use
// errors.Is to distinguish programmer errors (ErrUnsupportedOp) that must
// be raised from everything else, which the engine logs and absorbs
// internally wherever the spec calls for "logged, skipped".
var (
	// ErrMissingTask marks a referenced id (successor, parent, monitored,
	// root) that does not resolve within the workflow instance.
	ErrMissingTask = errors.New("workflow: missing task")

	// ErrUnsupportedOp marks an operation invoked on a kind that does not
	// implement it. Unlike the other sentinels this is a programmer
	// error and is always propagated to the caller.
	ErrUnsupportedOp = errors.New("workflow: unsupported operation")

	// ErrExecuteFailure wraps an error returned by user-supplied
	// business logic (executor, decision, interval, or listener
	// handlers).
	ErrExecuteFailure = errors.New("workflow: execute failure")

	// ErrStoreTransient wraps a failed Store or Broker call at the
	// boundary; retry policy is the collaborator's responsibility, not
	// the core's.
	ErrStoreTransient = errors.New("workflow: store transient failure")

	// ErrDeliverySkipped marks an event the delivery policy dropped
	// (wrong status, stream mismatch, missing workflow). The engine does
	// not return it; dropped deliveries are reported as
	// EventDeliverySkipped observer events.
	ErrDeliverySkipped = errors.New("workflow: delivery skipped")
)
