package workflow

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/flow/observability"
)

// onComplete implements the completion cascade (spec §4.D). It is the
// single entry point every kind's execute path funnels through once a
// task reaches a (possibly non-terminal, for skip marking) status.
func (e *Engine) onComplete(ctx context.Context, inst *Instance, t *Task, status Status, iterate bool) error {
	if t.Status != status {
		t.Status = status
		if t.TimeCompleted.IsZero() {
			t.TimeCompleted = e.now()
		}
		t.LastUpdated = e.now()
		inst.UpdateCount++

		if status.Terminal() && (t.Kind == KindSensor || t.Kind == KindKafkaListener) {
			if err := e.unregisterSensor(ctx, inst, t); err != nil {
				return err
			}
		}
		if t.isTriggerFamily() {
			if err := e.store.RemoveTrigger(ctx, inst.RootID, t.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreTransient, err)
			}
		}

		if err := e.persist(ctx, inst); err != nil {
			return err
		}

		e.logEvent(ctx, EventTaskComplete, observability.LevelVerbose, map[string]any{
			"workflow_id":      inst.RootID,
			"task_id":          t.ID,
			"kind":             string(t.Kind),
			"status":           string(status),
			"duration_seconds": t.TimeCompleted.Sub(t.TimeSubmitted).Seconds(),
		})
	}

	if !iterate {
		return nil
	}

	advanced := false
	for _, nid := range t.NextDAGs {
		e.yield(ctx)
		n, ok := inst.Tasks[nid]
		if !ok {
			e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{
				"workflow_id":   inst.RootID,
				"task_id":       nid,
				"referenced_by": t.ID,
			})
			continue
		}
		if n.Status == StatusSkipped {
			continue
		}
		if err := e.Start(ctx, inst, n.ID); err != nil {
			return err
		}
		e.logEvent(ctx, EventCascadeAdvance, observability.LevelVerbose, map[string]any{
			"workflow_id": inst.RootID,
			"task_id":     t.ID,
			"successor":   n.ID,
		})
		advanced = true
		break
	}

	if advanced {
		return nil
	}

	if t.ParentID != "" {
		parent, ok := inst.Tasks[t.ParentID]
		if !ok {
			e.logEvent(ctx, EventMissingTask, observability.LevelWarning, map[string]any{
				"workflow_id":   inst.RootID,
				"task_id":       t.ParentID,
				"referenced_by": t.ID,
			})
			return nil
		}
		parent.TimeCompleted = t.TimeCompleted
		e.logEvent(ctx, EventParentNotify, observability.LevelVerbose, map[string]any{
			"workflow_id": inst.RootID,
			"task_id":     t.ID,
			"parent_id":   parent.ID,
			"status":      string(status),
		})
		return e.notify(ctx, inst, parent, status)
	}

	if t.ID == inst.RootID {
		return e.rootCleanup(ctx, inst)
	}
	return nil
}

// notify is the parent-side hook (spec §4.A): a non-composite parent
// forwards straight to its own on_complete; a composite parent applies
// join semantics first.
func (e *Engine) notify(ctx context.Context, inst *Instance, parent *Task, status Status) error {
	if parent.TaskType == TypeParallelComposite {
		return e.parallelNotify(ctx, inst, parent, status)
	}
	return e.onComplete(ctx, inst, parent, status, true)
}

// rootCleanup implements spec §4.D step 5: for each task, remove its
// correlation entries and complete any associated monitoring task; then,
// if configured, delete the root instance. Runs even if some task is
// non-terminal, recording a warning instead of blocking.
func (e *Engine) rootCleanup(ctx context.Context, inst *Instance) error {
	incomplete := false
	for _, id := range inst.sortedTaskIDs() {
		e.yield(ctx)
		task := inst.Tasks[id]
		if !task.Status.Terminal() {
			incomplete = true
		}
		if task.Kind == KindSensor || task.Kind == KindKafkaListener {
			if _, ok := inst.SensorCorrelation[task.ID]; ok {
				if err := e.unregisterSensor(ctx, inst, task); err != nil {
					return err
				}
			}
		}
		monitorID, ok, err := e.store.GetMonitoringTask(ctx, inst.RootID, task.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreTransient, err)
		}
		if ok {
			if mt, exists := inst.Tasks[monitorID]; exists && !mt.Status.Terminal() {
				if err := e.onComplete(ctx, inst, mt, StatusCompleted, false); err != nil {
					return err
				}
			}
		}
	}

	if incomplete {
		e.logEvent(ctx, EventRootIncomplete, observability.LevelWarning, map[string]any{
			"workflow_id": inst.RootID,
		})
	}
	e.logEvent(ctx, EventRootCleanup, observability.LevelInfo, map[string]any{
		"workflow_id": inst.RootID,
	})

	if inst.DeleteOnComplete {
		if err := e.store.RemoveRootInstance(ctx, inst.RootID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreTransient, err)
		}
		return nil
	}
	return e.persist(ctx, inst)
}

// predecessorPrefix returns, in DFS order, every task id reachable from
// the workflow root along NextDAGs (entering sub-DAGs via RootDAG) up to
// but not including targetID. It is the shared traversal behind both
// allow_skip_to dispatch (§4.E) and SkipOnMaxDurationTask firing (§4.A):
// both need "everything on the path to this task that hasn't run yet".
// The root itself is never included; skipping the root mid-cascade has
// no meaning (root completion is driven by rootCleanup, not by being
// marked SKIPPED).
func (e *Engine) predecessorPrefix(inst *Instance, targetID string) ([]string, error) {
	var prefix []string
	visited := make(map[string]bool)

	var walk func(id string) bool
	walk = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		if id == targetID {
			return true
		}
		t, ok := inst.Tasks[id]
		if !ok {
			return false
		}
		prefix = append(prefix, id)
		if t.RootDAG != "" && walk(t.RootDAG) {
			return true
		}
		for _, n := range t.NextDAGs {
			if walk(n) {
				return true
			}
		}
		prefix = prefix[:len(prefix)-1]
		return false
	}

	if !walk(inst.RootID) {
		return nil, fmt.Errorf("%w: %s is not reachable from root %s", ErrMissingTask, targetID, inst.RootID)
	}
	if len(prefix) > 0 && prefix[0] == inst.RootID {
		prefix = prefix[1:]
	}
	return prefix, nil
}
