package workflow

import (
	"time"

	"github.com/google/uuid"
)

// newID generates a task id. Grounded on
// orchestrate/messaging/message.go's generateID: uuid.Must(uuid.NewV7()),
// chosen the same way there for time-ordered, collision-free ids.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func newTask(taskType TaskType, kind Kind, now time.Time) *Task {
	return &Task{
		ID:          newID(),
		TaskType:    taskType,
		Kind:        kind,
		Status:      StatusNotStarted,
		TimeCreated: now,
		LastUpdated: now,
	}
}

// NewRoot creates a ROOT task: a workflow instance's entry point, whose
// body begins at rootDAG.
func NewRoot(now time.Time, rootDAG string) *Task {
	t := newTask(TypeRoot, KindRoot, now)
	t.RootDAG = rootDAG
	return t
}

// NewSubDAG creates a SUB_DAG task whose body begins at rootDAG.
func NewSubDAG(now time.Time, rootDAG string) *Task {
	t := newTask(TypeSubDAG, KindSubDAG, now)
	t.RootDAG = rootDAG
	return t
}

// NewExecutor creates a LEAF executor task bound to a registered
// ExecutorFunc.
func NewExecutor(now time.Time, handler string) *Task {
	t := newTask(TypeLeaf, KindExecutor, now)
	t.HandlerName = handler
	return t
}

// NewKafkaCommand creates an executor task whose handler is expected to
// publish to stream via ExecContext.Engine.BrokerBackend().Publish.
func NewKafkaCommand(now time.Time, handler, stream string) *Task {
	t := newTask(TypeLeaf, KindKafkaCommand, now)
	t.HandlerName = handler
	t.Stream = stream
	return t
}

// NewSensor creates a LEAF sensor task that completes when handler's
// on_message reports the watched correlatableKey attribute satisfied.
func NewSensor(now time.Time, handler, correlatableKey string) *Task {
	t := newTask(TypeLeaf, KindSensor, now)
	t.HandlerName = handler
	t.CorrelatableKey = correlatableKey
	return t
}

// NewKafkaListener creates a sensor bound to an inbound stream.
func NewKafkaListener(now time.Time, handler, correlatableKey, stream string) *Task {
	t := NewSensor(now, handler, correlatableKey)
	t.Kind = KindKafkaListener
	t.Stream = stream
	return t
}

// NewDecision creates a LEAF decision task whose evaluate handler picks
// the successor to advance.
func NewDecision(now time.Time, handler string) *Task {
	t := newTask(TypeLeaf, KindDecision, now)
	t.HandlerName = handler
	return t
}

// NewTrigger creates a one-shot, time-gated task: start is a no-op until
// timeToExecute.
func NewTrigger(now, timeToExecute time.Time) *Task {
	t := newTask(TypeLeaf, KindTrigger, now)
	t.TimeToExecute = timeToExecute
	return t
}

// NewInterval creates an interval-polling trigger: handler is invoked
// every period until it returns true or forceCompleteBy passes. Pass a
// zero forceCompleteBy to poll indefinitely.
func NewInterval(now time.Time, handler string, period time.Duration, forceCompleteBy time.Time) *Task {
	t := newTask(TypeLeaf, KindInterval, now)
	t.HandlerName = handler
	t.TimeToExecute = now.Add(period)
	t.IntervalExecutePeriod = period
	t.TimeToForceComplete = forceCompleteBy
	return t
}

// NewSkipOnMaxDurationMonitor creates a monitoring task that, if
// monitoredTaskID is still EXECUTING when maxDuration elapses, skips the
// path to it and then skips it.
func NewSkipOnMaxDurationMonitor(now time.Time, monitoredTaskID string, maxDuration time.Duration) *Task {
	t := newTask(TypeLeaf, KindSkipOnMaxDuration, now)
	t.MonitoredTaskID = monitoredTaskID
	t.MaxRunDuration = maxDuration
	t.TimeToExecute = now.Add(maxDuration)
	return t
}

// NewCompleteByTimeMonitor creates the companion monitor a
// MonitoredProcessTemplateDAGInstance root spawns when runtime_parameters
// carries "complete_by_time".
func NewCompleteByTimeMonitor(now, completeBy time.Time, monitoredTaskID string) *Task {
	t := newTask(TypeLeaf, KindCompleteByTime, now)
	t.MonitoredTaskID = monitoredTaskID
	t.TimeToExecute = completeBy
	return t
}

// NewParallelComposite creates a PARALLEL_COMPOSITE task that starts
// every id in children together and joins per operator.
func NewParallelComposite(now time.Time, operator OperatorType, children ...string) *Task {
	t := newTask(TypeParallelComposite, KindParallelComposite, now)
	t.Operator = operator
	t.ParallelChildren = children
	return t
}

// WithParent sets ParentID and returns t for chaining.
func (t *Task) WithParent(parentID string) *Task {
	t.ParentID = parentID
	return t
}

// WithNext sets NextDAGs and returns t for chaining.
func (t *Task) WithNext(ids ...string) *Task {
	t.NextDAGs = ids
	return t
}

// WithAllowSkipTo marks the task eligible for allow_skip_to out-of-order
// advance (spec §4.E).
func (t *Task) WithAllowSkipTo() *Task {
	t.AllowSkipTo = true
	return t
}

// WithReprocessOnMessage marks a sensor to re-invoke on_message after
// COMPLETED instead of restarting.
func (t *Task) WithReprocessOnMessage() *Task {
	t.ReprocessOnMessage = true
	return t
}

// WithMatchOnlyOne marks a sensor to consume exactly one correlated event
// across all live instances before self-completing.
func (t *Task) WithMatchOnlyOne() *Task {
	t.MatchOnlyOne = true
	return t
}

// WithCompanionMonitor wires a companion monitoring task id onto a ROOT
// task (MonitoredProcessTemplateDAGInstance, spec §4.A).
func (t *Task) WithCompanionMonitor(monitorID string) *Task {
	t.CompanionMonitorID = monitorID
	return t
}

// WithParams attaches kind-specific static configuration, e.g. an
// outbound stream payload template.
func (t *Task) WithParams(params map[string]any) *Task {
	t.Params = params
	return t
}
