package workflow

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/flow/observability"
)

// runSubDAG implements INonLeafNodeTask / ITemplateDAGInstance's execute
// (spec §4.A): a status flip to EXECUTING (already done by Start before
// execute is invoked) followed by starting root_dag. A ROOT task whose
// CompanionMonitorID is set additionally starts its companion monitor
// when runtime_parameters carries "complete_by_time"
// (MonitoredProcessTemplateDAGInstance). Completion is driven from below
// via notify, so this always returns the empty status.
//
// A missing root_dag or companion monitor id is spec §7's MISSING_TASK:
// logged and skipped, never raised — matching
// original_source/dagger/tasks/task.py's INonLeafNodeTask.start, which
// logs and returns rather than failing the task when get_task(root_dag)
// comes back empty. The task is left EXECUTING (stalled) rather than
// failed; nothing below it can ever drive it to a terminal status, which
// is the same outcome the Python original accepts.
func (e *Engine) runSubDAG(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	if t.TaskType == TypeRoot && t.CompanionMonitorID != "" {
		if _, ok := inst.RuntimeParameters["complete_by_time"]; ok {
			if _, ok := inst.Tasks[t.CompanionMonitorID]; !ok {
				e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{
					"workflow_id":   inst.RootID,
					"task_id":       t.CompanionMonitorID,
					"referenced_by": t.ID,
				})
			} else if err := e.Start(ctx, inst, t.CompanionMonitorID); err != nil {
				return "", err
			}
		}
	}
	if _, ok := inst.Tasks[t.RootDAG]; !ok {
		e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{
			"workflow_id":   inst.RootID,
			"task_id":       t.RootDAG,
			"referenced_by": t.ID,
		})
		return "", nil
	}
	if err := e.Start(ctx, inst, t.RootDAG); err != nil {
		return "", err
	}
	return "", nil
}

// runParallelComposite starts every child in ParallelChildren, in order
// (spec §4.A: "start starts every child in iteration order"). Completion
// is driven by parallelNotify as children reach terminal status.
//
// A dangling child id is spec §7's MISSING_TASK: logged and skipped, the
// remaining siblings still started — matching
// original_source/dagger/tasks/task.py's ParallelCompositeTask.start,
// which logs a missing child lookup and continues the loop rather than
// aborting it.
func (e *Engine) runParallelComposite(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	for _, cid := range t.ParallelChildren {
		e.yield(ctx)
		if _, ok := inst.Tasks[cid]; !ok {
			e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{
				"workflow_id":   inst.RootID,
				"task_id":       cid,
				"referenced_by": t.ID,
			})
			continue
		}
		if err := e.Start(ctx, inst, cid); err != nil {
			return "", err
		}
	}
	return "", nil
}

// runDecision implements DecisionTask (spec §4.A): evaluate picks one id
// from NextDAGs; every other successor is marked SKIPPED (non-iterating)
// before the chosen one is advanced. Rather than special-casing the
// advance, runDecision marks every non-chosen successor SKIPPED and
// returns COMPLETED: the generic cascade in onComplete then walks
// NextDAGs in order and starts the first non-SKIPPED entry, which is
// necessarily the chosen one.
func (e *Engine) runDecision(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	fn, err := GetDecision(t.HandlerName)
	if err != nil {
		return "", err
	}
	chosen, err := fn(ctx, &ExecContext{Engine: e, Instance: inst, Task: t})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecuteFailure, err)
	}

	found := false
	for _, nid := range t.NextDAGs {
		if nid == chosen {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: decision %s evaluated to %s, not in next_dags", ErrMissingTask, t.ID, chosen)
	}

	for _, nid := range t.NextDAGs {
		if nid == chosen {
			continue
		}
		n, ok := inst.Tasks[nid]
		if !ok {
			continue
		}
		if err := e.onComplete(ctx, inst, n, StatusSkipped, false); err != nil {
			return "", err
		}
	}
	return StatusCompleted, nil
}

// runTrigger implements TriggerTask's execute once it has already been
// judged due by Start's arm check: optionally runs a user handler, then
// completes. A bare time-gate with no HandlerName simply fires.
func (e *Engine) runTrigger(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	if t.HandlerName == "" {
		return StatusCompleted, nil
	}
	return e.runExecutor(ctx, inst, t)
}

// runInterval implements IntervalTask's execute (spec §4.A): calls
// interval_execute; a false result reschedules at now+period unless the
// force-complete deadline has passed, in which case it finalizes. A
// reschedule reverts the task to NOT_STARTED and re-arms it in the
// trigger index rather than completing, so the next Tick picks it back
// up (spec invariant 6: time_to_execute is non-decreasing).
func (e *Engine) runInterval(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	fn, err := GetInterval(t.HandlerName)
	if err != nil {
		return "", err
	}
	done, err := fn(ctx, &ExecContext{Engine: e, Instance: inst, Task: t})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecuteFailure, err)
	}
	if done {
		return StatusCompleted, nil
	}
	if !t.TimeToForceComplete.IsZero() && !e.now().Before(t.TimeToForceComplete) {
		return StatusCompleted, nil
	}

	t.TimeToExecute = e.now().Add(t.IntervalExecutePeriod)
	t.Status = StatusNotStarted
	t.LastUpdated = e.now()
	inst.UpdateCount++
	if err := e.armTrigger(ctx, inst, t); err != nil {
		return "", err
	}
	if err := e.persist(ctx, inst); err != nil {
		return "", err
	}
	return "", nil
}

// runMonitor implements MonitoringTask firing (spec §4.A). The spec gives
// one concrete policy, SkipOnMaxDurationTask: if the monitored task is
// still EXECUTING, skip the remaining-task prefix from root down to it
// (non-iterating), then skip the monitored task itself (iterating, which
// cascades its successors). CompleteByTimeTask — the companion monitor a
// MonitoredProcessTemplateDAGInstance spawns for runtime_parameters'
// "complete_by_time" — has no separate concrete policy described in the
// spec beyond "completed along with self" at root cleanup, so its firing
// behavior (deadline reached before the root finished on its own) reuses
// the same skip-prefix policy against MonitoredTaskID. This is recorded
// as an open-question decision in DESIGN.md.
func (e *Engine) runMonitor(ctx context.Context, inst *Instance, t *Task) (Status, error) {
	monitored, ok := inst.Tasks[t.MonitoredTaskID]
	if !ok {
		return StatusCompleted, nil
	}
	if monitored.Status != StatusExecuting {
		return StatusCompleted, nil
	}

	prefix, err := e.predecessorPrefix(inst, monitored.ID)
	if err != nil {
		return "", err
	}
	for _, pid := range prefix {
		e.yield(ctx)
		p := inst.Tasks[pid]
		if p.Status == StatusNotStarted || p.Status == StatusExecuting {
			if err := e.onComplete(ctx, inst, p, StatusSkipped, false); err != nil {
				return "", err
			}
		}
	}

	if err := e.onComplete(ctx, inst, monitored, StatusSkipped, true); err != nil {
		return "", err
	}
	return StatusCompleted, nil
}
