package workflow

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/flow/observability"
)

// parallelNotify implements JOIN_ALL / ATLEAST_ONE join semantics (spec
// §4.G) for a PARALLEL_COMPOSITE parent receiving a child's terminal
// notify. A parent already terminal ignores later children reaching
// their own terminal state (spec §8 property 4: parent notify
// idempotence) — ATLEAST_ONE in particular completes on its first
// terminal child and leaves the rest to run to their own terminal state
// without re-triggering the parent.
func (e *Engine) parallelNotify(ctx context.Context, inst *Instance, parent *Task, status Status) error {
	if parent.Status.Terminal() {
		return nil
	}

	terminalCount := 0
	for _, cid := range parent.ParallelChildren {
		c, ok := inst.Tasks[cid]
		if !ok {
			continue
		}
		if c.Status.Terminal() {
			terminalCount++
		}
	}

	var complete bool
	switch parent.Operator {
	case OperatorJoinAll:
		complete = terminalCount == len(parent.ParallelChildren)
	case OperatorAtLeastOne:
		complete = terminalCount >= 1
	default:
		return fmt.Errorf("%w: unknown parallel operator %q on %s", ErrUnsupportedOp, parent.Operator, parent.ID)
	}
	if !complete {
		return nil
	}

	e.logEvent(ctx, EventParallelJoin, observability.LevelVerbose, map[string]any{
		"workflow_id": inst.RootID,
		"task_id":     parent.ID,
		"operator":    string(parent.Operator),
		"status":      string(status),
	})
	return e.onComplete(ctx, inst, parent, status, true)
}
