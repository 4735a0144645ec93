package workflow

import (
	"context"
	"time"
)

// Event is an inbound message delivered by the Broker. Payloads are opaque
// to the core; only a stream's registered KeyExtractor and ListenerFuncs
// interpret them (spec §6).
type Event struct {
	Stream    string
	Payload   []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Broker is the stream transport collaborator (spec §6). Implementations
// live in the sibling broker package.
type Broker interface {
	// Publish sends a payload on stream. Used by KafkaCommandTask
	// handlers via ExecContext.
	Publish(ctx context.Context, stream string, payload []byte, headers map[string]string) error

	// Subscribe registers handler for stream with the given consumer
	// concurrency. Subscribe returns once the subscription is
	// established; handler is invoked for each inbound Event until ctx
	// is cancelled.
	Subscribe(ctx context.Context, stream string, concurrency int, handler func(ctx context.Context, ev Event) error) error
}
