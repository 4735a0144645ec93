package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/flow/workflow"
)

// newTestRedisStore exercises RedisStore against an in-process fake
// server, grounded on jordigilh-kubernaut's use of
// alicebob/miniredis/v2 for exactly this purpose: no real Redis needed
// in unit tests.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreInstanceRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	root := workflow.NewRoot(now, "")
	inst := workflow.NewInstance(root.ID)
	inst.AddTask(root)
	inst.RuntimeParameters["foo"] = "bar"
	inst.UpdateCount = 1

	if err := s.UpdateInstance(ctx, inst); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}

	got, err := s.GetInstance(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got == nil {
		t.Fatal("expected instance, got nil")
	}
	if got.RootID != inst.RootID {
		t.Errorf("RootID = %q, want %q", got.RootID, inst.RootID)
	}
	if got.RuntimeParameters["foo"] != "bar" {
		t.Errorf("RuntimeParameters[foo] = %v, want bar", got.RuntimeParameters["foo"])
	}
	if len(got.Tasks) != 1 {
		t.Errorf("Tasks len = %d, want 1", len(got.Tasks))
	}
}

func TestRedisStoreInstanceMissing(t *testing.T) {
	s := newTestRedisStore(t)
	got, err := s.GetInstance(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing instance, got %+v", got)
	}
}

func TestRedisStoreCorrelationMoveBucket(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	key := workflow.CorrelationKey{Attr: "order_id", Value: "42", Stream: "orders"}

	if err := s.UpdateCorrelationKey(ctx, "wf-1", "task-1", workflow.CorrelationKey{}, key); err != nil {
		t.Fatalf("UpdateCorrelationKey: %v", err)
	}
	matches, err := s.LookupCorrelation(ctx, key)
	if err != nil {
		t.Fatalf("LookupCorrelation: %v", err)
	}
	if len(matches) != 1 || matches[0].WorkflowID != "wf-1" || matches[0].TaskID != "task-1" {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	newKey := workflow.CorrelationKey{Attr: "order_id", Value: "43", Stream: "orders"}
	if err := s.UpdateCorrelationKey(ctx, "wf-1", "task-1", key, newKey); err != nil {
		t.Fatalf("UpdateCorrelationKey (move): %v", err)
	}
	if matches, err := s.LookupCorrelation(ctx, key); err != nil || len(matches) != 0 {
		t.Fatalf("old bucket not cleared: %+v, err=%v", matches, err)
	}
	if matches, err := s.LookupCorrelation(ctx, newKey); err != nil || len(matches) != 1 {
		t.Fatalf("new bucket missing entry: %+v, err=%v", matches, err)
	}
}

func TestRedisStoreTriggerOrdering(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	offsets := map[string]time.Duration{"t1": 1 * time.Second, "t2": 2 * time.Second, "t3": 3 * time.Second}
	for _, id := range []string{"t3", "t1", "t2"} {
		rec := workflow.TriggerRecord{WorkflowID: "wf", TaskID: id, TriggerTime: base.Add(offsets[id])}
		if err := s.StoreTrigger(ctx, rec); err != nil {
			t.Fatalf("StoreTrigger(%s): %v", id, err)
		}
	}

	due, err := s.DueTriggers(ctx, base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("DueTriggers: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due triggers, got %d", len(due))
	}
	want := []string{"t1", "t2", "t3"}
	for i, w := range want {
		if due[i].TaskID != w {
			t.Fatalf("trigger[%d] = %s, want %s (full order %v)", i, due[i].TaskID, w, due)
		}
	}

	if err := s.RemoveTrigger(ctx, "wf", "t1"); err != nil {
		t.Fatalf("RemoveTrigger: %v", err)
	}
	due, err = s.DueTriggers(ctx, base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("DueTriggers after remove: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due triggers after remove, got %d", len(due))
	}
}

func TestRedisStoreMonitorPairing(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.RegisterMonitor(ctx, "wf", "monitored-1", "monitor-1"); err != nil {
		t.Fatalf("RegisterMonitor: %v", err)
	}
	id, ok, err := s.GetMonitoringTask(ctx, "wf", "monitored-1")
	if err != nil {
		t.Fatalf("GetMonitoringTask: %v", err)
	}
	if !ok || id != "monitor-1" {
		t.Fatalf("GetMonitoringTask = (%q, %v), want (monitor-1, true)", id, ok)
	}

	_, ok, err = s.GetMonitoringTask(ctx, "wf", "no-such-task")
	if err != nil {
		t.Fatalf("GetMonitoringTask (missing): %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unregistered monitor pairing")
	}
}
