package broker

import "sync"

// MetricsSnapshot is a point-in-time read of Metrics, adapted from
// orchestrate/hub/metrics.go's MetricsSnapshot: per-stream counters
// instead of the hub's per-hub agent/message counters.
type MetricsSnapshot struct {
	Published map[string]int64
	Received  map[string]int64
}

// Metrics tracks per-stream publish/receive counts, adapted from
// orchestrate/hub/metrics.go's Metrics shape.
type Metrics struct {
	mu        sync.Mutex
	published map[string]int64
	received  map[string]int64
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{published: make(map[string]int64), received: make(map[string]int64)}
}

func (m *Metrics) recordPublished(stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[stream]++
}

func (m *Metrics) recordReceived(stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[stream]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{
		Published: make(map[string]int64, len(m.published)),
		Received:  make(map[string]int64, len(m.received)),
	}
	for k, v := range m.published {
		snap.Published[k] = v
	}
	for k, v := range m.received {
		snap.Received[k] = v
	}
	return snap
}
