package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/tailored-agentic-units/flow/broker"
	"github.com/tailored-agentic-units/flow/store"
	"github.com/tailored-agentic-units/flow/workflow"
)

// registerListener registers a ListenerFunc that returns false before the
// completeOnCall'th invocation (1-indexed) and complete from then on.
func registerListener(completeOnCall int) string {
	name := uniqueHandlerName("listener")
	calls := 0
	workflow.RegisterListener(name, func(_ context.Context, _ *workflow.ExecContext, _ workflow.Event) (bool, error) {
		calls++
		return calls >= completeOnCall, nil
	})
	return name
}

func registerKeyExtractor(stream, attr string) {
	workflow.RegisterKeyExtractor(stream, func(ev workflow.Event) ([]workflow.CorrelationKey, error) {
		return []workflow.CorrelationKey{{Attr: attr, Value: string(ev.Payload)}}, nil
	})
}

// TestEngine_SensorAllowSkipTo implements spec §8 end-to-end scenario 3:
// an event destined for a not-yet-reached allow_skip_to sensor skips the
// predecessor prefix, then a second event completes the sensor and its
// successor runs.
func TestEngine_SensorAllowSkipTo(t *testing.T) {
	now := time.Now()
	st := store.NewMemoryStore()
	eng := workflow.NewEngine(st, broker.NewMemoryBroker())
	ctx := context.Background()

	stream := uniqueHandlerName("stream")
	attr := "order_id"
	value := "order-42"
	registerKeyExtractor(stream, attr)

	b := workflow.NewExecutor(now, registerCompletingExecutor(workflow.StatusCompleted, nil))
	s := workflow.NewKafkaListener(now, registerListener(2), attr, stream).WithNext(b.ID)
	a := workflow.NewExecutor(now, registerCompletingExecutor(workflow.StatusCompleted, nil)).WithNext(s.ID)

	root := workflow.NewRoot(now, a.ID)
	a.ParentID = root.ID
	s.ParentID = root.ID
	b.ParentID = root.ID

	inst := workflow.NewInstance(root.ID)
	inst.AddTask(root)
	inst.AddTask(a)
	inst.AddTask(s)
	inst.AddTask(b)
	inst.RuntimeParameters[attr] = value
	s.WithAllowSkipTo()

	// Simulate the out-of-scope template instantiator having already
	// registered s's correlation entry at instance-creation time, the
	// way an allow_skip_to sensor must be reachable before it is ever
	// started.
	key := workflow.CorrelationKey{Attr: attr, Value: value, Stream: stream}
	if err := st.UpdateCorrelationKey(ctx, root.ID, s.ID, workflow.CorrelationKey{}, key); err != nil {
		t.Fatalf("seed correlation: %v", err)
	}
	inst.SensorCorrelation[s.ID] = workflow.SensorCorrelation{Attr: attr, Value: value}

	if err := st.UpdateInstance(ctx, inst); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}

	ev := workflow.Event{Stream: stream, Payload: []byte(value), Timestamp: now}

	if err := eng.Dispatch(ctx, ev); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if a.Status != workflow.StatusSkipped {
		t.Errorf("a status = %s, want SKIPPED", a.Status)
	}
	if s.Status != workflow.StatusExecuting {
		t.Errorf("s status = %s, want EXECUTING", s.Status)
	}

	if err := eng.Dispatch(ctx, ev); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if s.Status != workflow.StatusCompleted {
		t.Errorf("s status = %s, want COMPLETED", s.Status)
	}
	if b.Status != workflow.StatusCompleted {
		t.Errorf("b status = %s, want COMPLETED", b.Status)
	}
}

// TestEngine_CorrelationIndexTightness implements spec §8 property 5: a
// live sensor holds exactly one index entry; a terminal sensor holds
// zero.
func TestEngine_CorrelationIndexTightness(t *testing.T) {
	now := time.Now()
	st := store.NewMemoryStore()
	eng := workflow.NewEngine(st, broker.NewMemoryBroker())
	ctx := context.Background()

	stream := uniqueHandlerName("stream")
	attr := "session_id"
	value := "sess-1"
	registerKeyExtractor(stream, attr)

	s := workflow.NewKafkaListener(now, registerListener(1), attr, stream)
	root := workflow.NewRoot(now, s.ID)
	s.ParentID = root.ID

	inst := workflow.NewInstance(root.ID)
	inst.AddTask(root)
	inst.AddTask(s)
	inst.RuntimeParameters[attr] = value

	if err := eng.Start(ctx, inst, root.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status != workflow.StatusExecuting {
		t.Fatalf("s status = %s, want EXECUTING before delivery", s.Status)
	}

	key := workflow.CorrelationKey{Attr: attr, Value: value, Stream: stream}
	matches, err := st.LookupCorrelation(ctx, key)
	if err != nil {
		t.Fatalf("LookupCorrelation: %v", err)
	}
	if len(matches) != 1 || matches[0].TaskID != s.ID {
		t.Fatalf("expected exactly one match for live sensor, got %v", matches)
	}

	ev := workflow.Event{Stream: stream, Payload: []byte(value), Timestamp: now}
	if err := eng.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.Status != workflow.StatusCompleted {
		t.Fatalf("s status = %s, want COMPLETED", s.Status)
	}

	matches, err = st.LookupCorrelation(ctx, key)
	if err != nil {
		t.Fatalf("LookupCorrelation after completion: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected zero matches for terminal sensor, got %v", matches)
	}
}
