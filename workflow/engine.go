package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/tailored-agentic-units/flow/observability"
)

// Option configures an Engine after construction. Applied by NewEngine;
// overrides replace the zero-value defaults.
type Option func(*Engine)

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPartitions sets the number of dispatch-pool worker partitions.
// Defaults to runtime.NumCPU().
func WithPartitions(n int) Option {
	return func(e *Engine) { e.partitions = n }
}

// WithClock overrides the engine's notion of "now", for deterministic
// tests of trigger/interval/monitor firing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// Engine is the explicit execution context every task operation runs
// against, replacing the source's process-wide "current engine" global
// (spec §9's design note): tasks are pure data, Store and Broker are
// injected collaborators, and no package-level state holds workflow
// progress.
type Engine struct {
	store    Store
	broker   Broker
	observer observability.Observer
	pool     *dispatchPool

	partitions int
	clock      func() time.Time
}

// NewEngine creates an Engine bound to store and broker.
func NewEngine(store Store, broker Broker, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		broker:     broker,
		observer:   observability.NoOpObserver{},
		partitions: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.partitions < 1 {
		e.partitions = runtime.NumCPU()
	}
	e.pool = newDispatchPool(e.partitions)
	return e
}

// StoreBackend returns the engine's durable collaborator, for handlers that need
// direct access (rare; most handlers only need ExecContext.Instance).
func (e *Engine) StoreBackend() Store { return e.store }

// BrokerBackend returns the engine's stream transport, for KafkaCommandTask
// handlers publishing outbound messages.
func (e *Engine) BrokerBackend() Broker { return e.broker }

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

// yield is the cooperative yield point spec §5 requires before each
// successor dispatch and before processing each task in the root-cleanup
// sweep, so long cascades do not starve event ingress or timer ticks.
func (e *Engine) yield(ctx context.Context) {
	runtime.Gosched()
	_ = ctx
}

func (e *Engine) logEvent(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	e.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: e.now(),
		Source:    "workflow.engine",
		Data:      data,
	})
}

// Start implements the common start contract (spec §4.A): idempotent
// replay on {COMPLETED, SKIPPED}, a status flip to EXECUTING and a
// persisted write on {NOT_STARTED, SUBMITTED}, then kind-specific execute.
// Any other status (EXECUTING, FAILURE, STOPPED) is a no-op: the task is
// already running or already failed/stopped and start is not re-entrant
// for those states.
func (e *Engine) Start(ctx context.Context, inst *Instance, taskID string) error {
	t, ok := inst.Tasks[taskID]
	if !ok {
		e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{"task_id": taskID})
		return fmt.Errorf("%w: %s", ErrMissingTask, taskID)
	}

	if t.Status == StatusCompleted || t.Status == StatusSkipped {
		return e.onComplete(ctx, inst, t, t.Status, true)
	}
	if t.Status != StatusNotStarted && t.Status != StatusSubmitted {
		return nil
	}

	// TriggerTask and its subkinds are no-ops until due (spec §4.A):
	// arm the trigger index and return without transitioning status, so
	// the scheduler's next Tick re-enters Start once time_to_execute has
	// passed.
	if t.isTriggerFamily() && !t.IsDue(e.now()) {
		if err := e.armTrigger(ctx, inst, t); err != nil {
			return err
		}
		return e.persist(ctx, inst)
	}

	t.Status = StatusExecuting
	t.TimeSubmitted = e.now()
	t.LastUpdated = t.TimeSubmitted
	inst.UpdateCount++

	if t.Kind == KindSensor || t.Kind == KindKafkaListener {
		if err := e.registerSensor(ctx, inst, t); err != nil {
			return err
		}
	}

	if err := e.persist(ctx, inst); err != nil {
		return err
	}

	e.logEvent(ctx, EventTaskStart, observability.LevelVerbose, map[string]any{
		"workflow_id": inst.RootID,
		"task_id":     t.ID,
		"kind":        string(t.Kind),
	})

	status, err := e.execute(ctx, inst, t)
	if err != nil {
		if isUnsupportedOp(err) {
			return err
		}
		return e.onComplete(ctx, inst, t, StatusFailure, true)
	}
	if status == "" {
		// Kind does not complete synchronously (sensor awaiting a
		// message, sub-DAG/parallel-composite awaiting its children, a
		// trigger-family task that armed itself and is waiting on the
		// scheduler). execute already did everything required.
		return nil
	}
	return e.onComplete(ctx, inst, t, status, true)
}

func isUnsupportedOp(err error) bool {
	return errors.Is(err, ErrUnsupportedOp)
}

// execute dispatches to the kind-specific execute implementation. Structural
// dispatch is on TaskType first (SUB_DAG/ROOT/PARALLEL_COMPOSITE share
// structural behavior regardless of leaf Kind), then on Kind for leaves.
// This is the tagged-variant behavior table spec §9 calls for in place of
// class polymorphism.
func (e *Engine) execute(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	switch t.TaskType {
	case TypeSubDAG, TypeRoot:
		return e.runSubDAG(ctx, inst, t)
	case TypeParallelComposite:
		return e.runParallelComposite(ctx, inst, t)
	case TypeLeaf:
		return e.executeLeaf(ctx, inst, t)
	default:
		return "", fmt.Errorf("%w: task type %s", ErrUnsupportedOp, t.TaskType)
	}
}

func (e *Engine) executeLeaf(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	switch t.Kind {
	case KindExecutor, KindKafkaCommand:
		return e.runExecutor(ctx, inst, t)
	case KindDecision:
		return e.runDecision(ctx, inst, t)
	case KindSensor, KindKafkaListener:
		// start() already transitioned to EXECUTING and registered the
		// correlation-index entry; completion is driven exclusively by
		// a later on_message (correlation.go).
		return "", nil
	case KindTrigger:
		return e.runTrigger(ctx, inst, t)
	case KindInterval:
		return e.runInterval(ctx, inst, t)
	case KindSkipOnMaxDuration, KindCompleteByTime:
		return e.runMonitor(ctx, inst, t)
	case KindSystemTimer:
		// Engine-internal; never appears in a user DAG (spec §4.A).
		return "", fmt.Errorf("%w: system timer task is not user-startable", ErrUnsupportedOp)
	default:
		return "", fmt.Errorf("%w: leaf kind %s", ErrUnsupportedOp, t.Kind)
	}
}

func (e *Engine) runExecutor(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	fn, err := GetExecutor(t.HandlerName)
	if err != nil {
		return "", err
	}
	status, err := fn(ctx, &ExecContext{Engine: e, Instance: inst, Task: t})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecuteFailure, err)
	}
	return status, nil
}

func (e *Engine) persist(ctx context.Context, inst *Instance) error {
	if err := e.store.UpdateInstance(ctx, inst); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return nil
}
