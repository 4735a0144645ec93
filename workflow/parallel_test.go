package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/tailored-agentic-units/flow/broker"
	"github.com/tailored-agentic-units/flow/store"
	"github.com/tailored-agentic-units/flow/workflow"
)

// TestEngine_ParallelAtLeastOne implements spec §8 end-to-end scenario 4:
// a JOIN policy of ATLEAST_ONE completes as soon as one child terminates,
// without waiting for (or re-triggering on) the others, and the parent's
// successor starts exactly once.
func TestEngine_ParallelAtLeastOne(t *testing.T) {
	now := time.Now()
	st := store.NewMemoryStore()
	eng := workflow.NewEngine(st, broker.NewMemoryBroker())
	ctx := context.Background()

	successorRuns := 0
	successor := workflow.NewExecutor(now, registerCompletingExecutor(workflow.StatusCompleted, func() { successorRuns++ }))

	// c1 and c3 are sensors that never receive a message during this
	// test, standing in for children still running when c2 (a plain
	// executor) completes immediately; this keeps "c2 completes first"
	// deterministic without relying on goroutine scheduling.
	stream1 := uniqueHandlerName("stream")
	stream3 := uniqueHandlerName("stream")
	registerKeyExtractor(stream1, "k1")
	registerKeyExtractor(stream3, "k3")
	c1 := workflow.NewKafkaListener(now, registerListener(1), "k1", stream1)
	c3 := workflow.NewKafkaListener(now, registerListener(1), "k3", stream3)
	c2 := workflow.NewExecutor(now, registerCompletingExecutor(workflow.StatusCompleted, nil))

	p := workflow.NewParallelComposite(now, workflow.OperatorAtLeastOne, c1.ID, c2.ID, c3.ID).WithNext(successor.ID)
	root := workflow.NewRoot(now, p.ID)
	p.ParentID = root.ID
	c1.ParentID = p.ID
	c2.ParentID = p.ID
	c3.ParentID = p.ID
	// successor is left without a parent so its completion does not
	// complete the root: root cleanup would remove c1's correlation
	// entry, and the later event below could not reach it.

	inst := workflow.NewInstance(root.ID)
	inst.AddTask(root)
	inst.AddTask(p)
	inst.AddTask(c1)
	inst.AddTask(c2)
	inst.AddTask(c3)
	inst.AddTask(successor)
	inst.RuntimeParameters["k1"] = "v1"
	inst.RuntimeParameters["k3"] = "v3"

	if err := eng.Start(ctx, inst, root.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if c2.Status != workflow.StatusCompleted {
		t.Fatalf("c2 status = %s, want COMPLETED", c2.Status)
	}
	if p.Status != workflow.StatusCompleted {
		t.Fatalf("p status = %s, want COMPLETED immediately on first terminal child", p.Status)
	}
	if c1.Status != workflow.StatusExecuting {
		t.Fatalf("c1 status = %s, want EXECUTING (still running, not re-triggered)", c1.Status)
	}
	if c3.Status != workflow.StatusExecuting {
		t.Fatalf("c3 status = %s, want EXECUTING (still running, not re-triggered)", c3.Status)
	}
	if successorRuns != 1 {
		t.Fatalf("successor ran %d times, want exactly 1", successorRuns)
	}

	// c1 completes later; the join must not re-fire the parent or the
	// successor a second time (spec §8 property 4: parent notify
	// idempotence).
	ev1 := workflow.Event{Stream: stream1, Payload: []byte("v1"), Timestamp: now}
	if err := eng.Dispatch(ctx, ev1); err != nil {
		t.Fatalf("Dispatch c1: %v", err)
	}
	if c1.Status != workflow.StatusCompleted {
		t.Fatalf("c1 status = %s, want COMPLETED", c1.Status)
	}
	if successorRuns != 1 {
		t.Fatalf("successor ran %d times after c1 completed, want still exactly 1", successorRuns)
	}

	// c3 completes last; same idempotence check.
	ev3 := workflow.Event{Stream: stream3, Payload: []byte("v3"), Timestamp: now}
	if err := eng.Dispatch(ctx, ev3); err != nil {
		t.Fatalf("Dispatch c3: %v", err)
	}
	if c3.Status != workflow.StatusCompleted {
		t.Fatalf("c3 status = %s, want COMPLETED", c3.Status)
	}
	if successorRuns != 1 {
		t.Fatalf("successor ran %d times after c3 completed, want still exactly 1", successorRuns)
	}
}

// TestEngine_ParallelJoinAll implements the JOIN_ALL counterpart: the
// parent only completes once every child has reached a terminal status.
func TestEngine_ParallelJoinAll(t *testing.T) {
	now := time.Now()
	st := store.NewMemoryStore()
	eng := workflow.NewEngine(st, broker.NewMemoryBroker())
	ctx := context.Background()

	stream := uniqueHandlerName("stream")
	registerKeyExtractor(stream, "k")
	c1 := workflow.NewExecutor(now, registerCompletingExecutor(workflow.StatusCompleted, nil))
	c2 := workflow.NewKafkaListener(now, registerListener(1), "k", stream)

	p := workflow.NewParallelComposite(now, workflow.OperatorJoinAll, c1.ID, c2.ID)
	root := workflow.NewRoot(now, p.ID)
	p.ParentID = root.ID
	c1.ParentID = p.ID
	c2.ParentID = p.ID

	inst := workflow.NewInstance(root.ID)
	inst.AddTask(root)
	inst.AddTask(p)
	inst.AddTask(c1)
	inst.AddTask(c2)
	inst.RuntimeParameters["k"] = "v"

	if err := eng.Start(ctx, inst, root.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Status == workflow.StatusCompleted {
		t.Fatalf("p completed before all children terminated")
	}

	ev := workflow.Event{Stream: stream, Payload: []byte("v"), Timestamp: now}
	if err := eng.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if p.Status != workflow.StatusCompleted {
		t.Errorf("p status = %s, want COMPLETED once both children are terminal", p.Status)
	}
}
