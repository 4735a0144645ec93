package broker

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tailored-agentic-units/flow/workflow"
)

// NATSBroker is a NATS-backed workflow.Broker, grounded on
// C360Studio-semspec's direct dependency on github.com/nats-io/nats.go
// (test/e2e/client/nats.go wraps the same *nats.Conn.Publish and
// QueueSubscribe calls used here). Core pub/sub is used rather than
// JetStream: at-least-once redelivery across process restarts is the
// Store's job (spec §1's durability requirement is met by persisting
// Instance state, not by broker replay), so the broker only needs
// fan-out and queue-group load balancing.
type NATSBroker struct {
	conn *nats.Conn
}

// NewNATSBroker wraps an already-connected *nats.Conn.
func NewNATSBroker(conn *nats.Conn) *NATSBroker {
	return &NATSBroker{conn: conn}
}

// Publish sends payload as a NATS message on subject stream, with
// headers carried as NATS message headers.
func (b *NATSBroker) Publish(ctx context.Context, stream string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(headers) == 0 {
		return b.conn.Publish(stream, payload)
	}
	msg := nats.NewMsg(stream)
	msg.Data = payload
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	return b.conn.PublishMsg(msg)
}

// Subscribe registers concurrency queue-group subscribers sharing a
// single queue name, so inbound messages load-balance across them the
// way spec §5's "subscribe with configurable concurrency" calls for.
// It returns once subscriptions are established; handler runs for each
// inbound message until ctx is cancelled, at which point every
// subscription in the group is torn down.
func (b *NATSBroker) Subscribe(ctx context.Context, stream string, concurrency int, handler func(ctx context.Context, ev workflow.Event) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	queue := stream + ".workers"

	natsHandler := func(msg *nats.Msg) {
		headers := make(map[string]string, len(msg.Header))
		for k := range msg.Header {
			headers[k] = msg.Header.Get(k)
		}
		_ = handler(ctx, workflow.Event{
			Stream:    stream,
			Payload:   msg.Data,
			Headers:   headers,
			Timestamp: time.Now(),
		})
	}

	subs := make([]*nats.Subscription, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		sub, err := b.conn.QueueSubscribe(stream, queue, natsHandler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	return nil
}

var _ workflow.Broker = (*NATSBroker)(nil)
