package broker

import (
	"context"
	"sync"
	"time"

	"github.com/tailored-agentic-units/flow/workflow"
)

type subscription struct {
	channel *eventChannel
}

// MemoryBroker is an in-memory workflow.Broker: Publish fans an event
// out to every subscription registered on that stream, and each
// subscription drains it through its own bounded worker pool sized by
// the caller's concurrency argument. Assembled from
// orchestrate/hub/channel.go's generic channel (see channel.go) and
// orchestrate/hub/metrics.go's counter shape (see metrics.go); suitable
// for tests and single-process deployments.
type MemoryBroker struct {
	mu            sync.RWMutex
	subscriptions map[string][]*subscription
	metrics       *Metrics
}

// NewMemoryBroker creates an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subscriptions: make(map[string][]*subscription),
		metrics:       NewMetrics(),
	}
}

// Metrics returns the broker's publish/receive counters.
func (b *MemoryBroker) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// Publish broadcasts ev to every live subscription on stream. A full
// subscriber buffer blocks the caller until there's room or ctx is
// cancelled; a slow subscriber does not drop messages.
func (b *MemoryBroker) Publish(ctx context.Context, stream string, payload []byte, headers map[string]string) error {
	ev := workflow.Event{
		Stream:    stream,
		Payload:   payload,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subscriptions[stream]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.channel.send(ctx, ev); err != nil {
			return err
		}
	}
	b.metrics.recordPublished(stream)
	return nil
}

// Subscribe registers handler against stream and returns immediately;
// concurrency workers drain the subscription's channel until ctx is
// cancelled, at which point the subscription is torn down and removed.
func (b *MemoryBroker) Subscribe(ctx context.Context, stream string, concurrency int, handler func(ctx context.Context, ev workflow.Event) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	sub := &subscription{channel: newEventChannel(ctx, concurrency*4)}

	b.mu.Lock()
	b.subscriptions[stream] = append(b.subscriptions[stream], sub)
	b.mu.Unlock()

	for i := 0; i < concurrency; i++ {
		go func() {
			for {
				ev, err := sub.channel.receive(ctx)
				if err != nil {
					return
				}
				if err := handler(ctx, ev); err == nil {
					b.metrics.recordReceived(stream)
				}
			}
		}()
	}

	go func() {
		<-ctx.Done()
		sub.channel.close()
		b.mu.Lock()
		defer b.mu.Unlock()
		remaining := b.subscriptions[stream][:0]
		for _, s := range b.subscriptions[stream] {
			if s != sub {
				remaining = append(remaining, s)
			}
		}
		b.subscriptions[stream] = remaining
	}()

	return nil
}

var _ workflow.Broker = (*MemoryBroker)(nil)
