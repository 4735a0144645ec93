// Package broker provides workflow.Broker implementations: an in-memory
// pub/sub broker for tests and single-process deployments, and a
// NATS-backed broker for durable multi-process deployments.
package broker

import (
	"context"
	"sync/atomic"

	"github.com/tailored-agentic-units/flow/workflow"
)

// eventChannel is a buffered, context-bound channel of workflow.Event,
// adapted from orchestrate/hub/channel.go's generic MessageChannel[T]:
// the same buffered-channel-plus-closed-flag shape, retyped from a
// generic parameter to workflow.Event for the in-memory broker's
// internal fan-out.
type eventChannel struct {
	ch     chan workflow.Event
	ctx    context.Context
	closed atomic.Bool
}

func newEventChannel(ctx context.Context, bufferSize int) *eventChannel {
	return &eventChannel{
		ch:  make(chan workflow.Event, bufferSize),
		ctx: ctx,
	}
}

// send blocks until the event is buffered, the caller's ctx is
// cancelled, or the channel's own lifetime ctx is cancelled.
func (c *eventChannel) send(ctx context.Context, ev workflow.Event) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	select {
	case c.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *eventChannel) receive(ctx context.Context) (workflow.Event, error) {
	select {
	case ev, ok := <-c.ch:
		if !ok {
			return workflow.Event{}, ErrChannelClosed
		}
		return ev, nil
	case <-ctx.Done():
		return workflow.Event{}, ctx.Err()
	case <-c.ctx.Done():
		return workflow.Event{}, c.ctx.Err()
	}
}

func (c *eventChannel) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}
