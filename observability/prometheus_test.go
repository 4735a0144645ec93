package observability_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/flow/observability"
)

func TestPrometheusObserver_EventsCounter(t *testing.T) {
	obs := observability.NewPrometheusObserver(nil)

	obs.OnEvent(context.Background(), observability.Event{
		Type:      "workflow.task.complete",
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "workflow.engine",
		Data: map[string]any{
			"kind":             "EXECUTOR",
			"status":           "COMPLETED",
			"duration_seconds": 1.5,
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	obs.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "flow_engine_events_total") {
		t.Errorf("expected events_total metric in output, got: %s", body)
	}
	if !strings.Contains(body, "flow_engine_task_duration_seconds") {
		t.Errorf("expected task_duration_seconds metric in output, got: %s", body)
	}
}

func TestPrometheusObserver_IgnoresIncompleteDurationData(t *testing.T) {
	obs := observability.NewPrometheusObserver(nil)

	// Missing "status" should not panic or register a histogram
	// observation; only the events counter increments.
	obs.OnEvent(context.Background(), observability.Event{
		Type:   "workflow.trigger.arm",
		Level:  observability.LevelVerbose,
		Source: "workflow.engine",
		Data:   map[string]any{"kind": "TRIGGER"},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	obs.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "flow_engine_events_total") {
		t.Fatal("expected events_total metric regardless of duration data")
	}
}
