package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/flow/observability"
)

// armTrigger registers (or refreshes) a pending trigger for a
// trigger-family task that is not yet due, per spec §4.F's trigger index.
func (e *Engine) armTrigger(ctx context.Context, inst *Instance, t *Task) error {
	if err := e.store.StoreTrigger(ctx, TriggerRecord{
		WorkflowID:  inst.RootID,
		TaskID:      t.ID,
		TriggerTime: t.TimeToExecute,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	e.logEvent(ctx, EventTriggerArm, observability.LevelVerbose, map[string]any{
		"workflow_id":     inst.RootID,
		"task_id":         t.ID,
		"time_to_execute": t.TimeToExecute,
	})
	return nil
}

// Tick fires every trigger whose TriggerTime has passed, in ascending
// time order (spec §4.F, §8 property 6). Each firing resolves the target
// task and invokes its Start, which either completes it (one-shot,
// monitoring, or interval-final) or reschedules it (interval non-final,
// which re-arms via runInterval).
func (e *Engine) Tick(ctx context.Context) error {
	due, err := e.store.DueTriggers(ctx, e.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	for _, rec := range due {
		e.yield(ctx)
		if err := e.fireTrigger(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fireTrigger(ctx context.Context, rec TriggerRecord) error {
	return e.pool.submit(ctx, rec.WorkflowID, func(ctx context.Context) error {
		inst, err := e.store.GetInstance(ctx, rec.WorkflowID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreTransient, err)
		}
		if inst == nil {
			return e.store.RemoveTrigger(ctx, rec.WorkflowID, rec.TaskID)
		}
		t, ok := inst.Tasks[rec.TaskID]
		if !ok || t.Status.Terminal() {
			return e.store.RemoveTrigger(ctx, rec.WorkflowID, rec.TaskID)
		}
		e.logEvent(ctx, EventTriggerFire, observability.LevelVerbose, map[string]any{
			"workflow_id": rec.WorkflowID,
			"task_id":     rec.TaskID,
		})
		return e.Start(ctx, inst, rec.TaskID)
	})
}

// RunSystemTimer is the SystemTimerTask of spec §4.A: an engine-internal
// loop, never part of any user DAG, that calls Tick on a fixed cadence
// (default 1s per §4.F) until ctx is cancelled.
func (e *Engine) RunSystemTimer(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				return err
			}
		}
	}
}
