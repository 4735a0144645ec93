package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/flow/observability"
)

// registerSensor performs the initial correlation-index registration for
// a sensor entering EXECUTING (spec §4.E), reading its watched attribute
// from the runtime blackboard.
func (e *Engine) registerSensor(ctx context.Context, inst *Instance, t *Task) error {
	return e.updateCorrelatableKey(ctx, inst, t, inst.RuntimeParameters[t.CorrelatableKey])
}

// updateCorrelatableKey implements update_correletable_key (spec §4.E):
// remove the previous bucket entry if one exists, add the new one, and
// record the sensor's current (attr, value) pair.
func (e *Engine) updateCorrelatableKey(ctx context.Context, inst *Instance, t *Task, newValue any) error {
	newStr := fmt.Sprint(newValue)
	var oldKey CorrelationKey
	if prev, ok := inst.SensorCorrelation[t.ID]; ok {
		oldKey = CorrelationKey{Attr: prev.Attr, Value: prev.Value, Stream: t.Stream}
	}
	newKey := CorrelationKey{Attr: t.CorrelatableKey, Value: newStr, Stream: t.Stream}

	if err := e.store.UpdateCorrelationKey(ctx, inst.RootID, t.ID, oldKey, newKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	inst.SensorCorrelation[t.ID] = SensorCorrelation{Attr: t.CorrelatableKey, Value: newStr}

	e.logEvent(ctx, EventCorrelationReg, observability.LevelVerbose, map[string]any{
		"workflow_id": inst.RootID,
		"task_id":     t.ID,
		"attr":        t.CorrelatableKey,
		"value":       newStr,
		"stream":      t.Stream,
	})
	return nil
}

// unregisterSensor removes a terminal sensor's single correlation entry
// (spec invariant 5: terminal sensors hold zero entries).
func (e *Engine) unregisterSensor(ctx context.Context, inst *Instance, t *Task) error {
	prev, ok := inst.SensorCorrelation[t.ID]
	if !ok {
		return nil
	}
	key := CorrelationKey{Attr: prev.Attr, Value: prev.Value, Stream: t.Stream}
	if err := e.store.RemoveFromCorrelation(ctx, inst.RootID, t.ID, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	delete(inst.SensorCorrelation, t.ID)
	return nil
}

// refreshRuntimeParameters implements _update_global_runtime_parameters
// (spec §4.E, §5): after a handler mutates the runtime blackboard,
// re-register every live sensor whose watched attribute's current value
// no longer matches what it is registered under.
func (e *Engine) refreshRuntimeParameters(ctx context.Context, inst *Instance) error {
	for id, t := range inst.Tasks {
		if t.Kind != KindSensor && t.Kind != KindKafkaListener {
			continue
		}
		if t.Status.Terminal() || t.CorrelatableKey == "" {
			continue
		}
		cur := fmt.Sprint(inst.RuntimeParameters[t.CorrelatableKey])
		if prev, ok := inst.SensorCorrelation[id]; ok && prev.Attr == t.CorrelatableKey && prev.Value == cur {
			continue
		}
		if err := e.updateCorrelatableKey(ctx, inst, t, inst.RuntimeParameters[t.CorrelatableKey]); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch routes one inbound event to every matching sensor task across
// all live workflow instances (spec §4.E). The open question of ordering
// among multiple yielded matches when match_only_one and allow_skip_to
// are both set is resolved in DESIGN.md: matches are processed in the
// order the store's LookupCorrelation yields them, without an imposed
// creation-time sort, since §6 only promises an iterator.
func (e *Engine) Dispatch(ctx context.Context, ev Event) error {
	extractor, err := GetKeyExtractor(ev.Stream)
	if err != nil {
		return err
	}
	candidates, err := extractor(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecuteFailure, err)
	}

	for _, cand := range candidates {
		cand.Stream = ev.Stream
		matches, err := e.store.LookupCorrelation(ctx, cand)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreTransient, err)
		}
		for _, m := range matches {
			e.logEvent(ctx, EventDispatch, observability.LevelVerbose, map[string]any{
				"workflow_id": m.WorkflowID,
				"task_id":     m.TaskID,
				"stream":      ev.Stream,
			})

			var stop bool
			err := e.pool.submit(ctx, m.WorkflowID, func(ctx context.Context) error {
				var innerErr error
				stop, innerErr = e.deliverTo(ctx, m.WorkflowID, m.TaskID, ev)
				return innerErr
			})
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// deliverTo loads the target workflow instance and task, validates the
// stream binding, and applies the delivery policy table. It reports
// whether this dispatch call should stop (match_only_one and a status
// change occurred).
func (e *Engine) deliverTo(ctx context.Context, workflowID, taskID string, ev Event) (bool, error) {
	inst, err := e.store.GetInstance(ctx, workflowID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	if inst == nil {
		e.logDeliverySkip(ctx, workflowID, taskID, "instance not found")
		return false, nil
	}
	t, ok := inst.Tasks[taskID]
	if !ok {
		e.logDeliverySkip(ctx, workflowID, taskID, "task not found")
		return false, nil
	}
	if t.Stream != ev.Stream {
		e.logDeliverySkip(ctx, workflowID, taskID, "stream mismatch")
		return false, nil
	}

	changed, err := e.applyDeliveryPolicy(ctx, inst, t, ev)
	if err != nil {
		return false, err
	}
	return changed && t.MatchOnlyOne, nil
}

func (e *Engine) logDeliverySkip(ctx context.Context, workflowID, taskID, reason string) {
	e.logEvent(ctx, EventDeliverySkipped, observability.LevelVerbose, map[string]any{
		"workflow_id": workflowID,
		"task_id":     taskID,
		"reason":      reason,
	})
}

// applyDeliveryPolicy implements the delivery policy table (spec §4.E).
// It returns whether the sensor's status changed as a result.
func (e *Engine) applyDeliveryPolicy(ctx context.Context, inst *Instance, t *Task, ev Event) (bool, error) {
	switch t.Status {
	case StatusNotStarted:
		if !t.AllowSkipTo {
			e.logDeliverySkip(ctx, inst.RootID, t.ID, "out-of-order, ignored")
			return false, nil
		}
		if err := e.skipPredecessors(ctx, inst, t); err != nil {
			return false, err
		}
		t.Status = StatusExecuting
		t.TimeSubmitted = e.now()
		t.LastUpdated = e.now()
		inst.UpdateCount++
		if err := e.registerSensor(ctx, inst, t); err != nil {
			return false, err
		}
		if err := e.persist(ctx, inst); err != nil {
			return false, err
		}
		return e.deliverMessage(ctx, inst, t, ev)

	case StatusExecuting:
		return e.deliverMessage(ctx, inst, t, ev)

	case StatusCompleted:
		if t.ReprocessOnMessage {
			_, err := e.deliverMessage(ctx, inst, t, ev)
			return false, err
		}
		t.Status = StatusNotStarted
		t.TimeCompleted = time.Time{}
		t.LastUpdated = e.now()
		inst.UpdateCount++
		if err := e.persist(ctx, inst); err != nil {
			return false, err
		}
		return false, e.Start(ctx, inst, t.ID)

	case StatusSkipped:
		if !t.AllowSkipTo {
			e.logDeliverySkip(ctx, inst.RootID, t.ID, "skipped, dropped")
			return false, nil
		}
		// Open question (spec §9): delivering to a SKIPPED sensor whose
		// predecessors are already terminal. We deliver unconditionally,
		// matching the source's implied path — see DESIGN.md.
		return e.deliverMessage(ctx, inst, t, ev)

	default: // FAILURE, STOPPED
		e.logDeliverySkip(ctx, inst.RootID, t.ID, "terminal, dropped")
		return false, nil
	}
}

// deliverMessage is "deliver event" in the delivery policy table: call
// on_message, refresh the runtime blackboard's sensor registrations, and
// complete the sensor if on_message reports full satisfaction.
func (e *Engine) deliverMessage(ctx context.Context, inst *Instance, t *Task, ev Event) (bool, error) {
	fn, err := GetListener(t.HandlerName)
	if err != nil {
		return false, err
	}
	complete, err := fn(ctx, &ExecContext{Engine: e, Instance: inst, Task: t}, ev)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrExecuteFailure, err)
	}
	if err := e.refreshRuntimeParameters(ctx, inst); err != nil {
		return false, err
	}
	if err := e.persist(ctx, inst); err != nil {
		return false, err
	}
	if complete {
		if err := e.onComplete(ctx, inst, t, StatusCompleted, true); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// skipPredecessors marks every still-pending task on the path from root
// to t SKIPPED without propagating (spec §4.E's allow_skip_to predecessor
// DFS), so the explicit re-entry on t is not fought by the ordinary
// cascade.
func (e *Engine) skipPredecessors(ctx context.Context, inst *Instance, t *Task) error {
	prefix, err := e.predecessorPrefix(inst, t.ID)
	if err != nil {
		return err
	}
	for _, pid := range prefix {
		e.yield(ctx)
		p := inst.Tasks[pid]
		if p.Status == StatusNotStarted || p.Status == StatusExecuting {
			if err := e.onComplete(ctx, inst, p, StatusSkipped, false); err != nil {
				return err
			}
		}
	}
	return nil
}
