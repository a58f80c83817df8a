// Package bus connects the chat transport and the dice bot with two buffered
// queues: inbound chat events and outbound system messages.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/dicebot/internal/chat"
)

// ErrClosed is returned by publish calls after [Bus.Close].
var ErrClosed = errors.New("bus: closed")

// DefaultBuffer is the capacity of each queue.
const DefaultBuffer = 100

// Bus carries [chat.Event] values inbound and [chat.Message] values
// outbound. Publishing blocks while the queue is full.
type Bus struct {
	inbound  chan chat.Event
	outbound chan chat.Message

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a bus whose queues hold buffer entries each. buffer <= 0
// selects [DefaultBuffer].
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		inbound:  make(chan chat.Event, buffer),
		outbound: make(chan chat.Message, buffer),
		done:     make(chan struct{}),
	}
}

// PublishInbound queues a chat event for the dice bot.
func (b *Bus) PublishInbound(ctx context.Context, ev chat.Event) error {
	return publish(ctx, b, b.inbound, ev)
}

// ConsumeInbound returns the next chat event. The bool is false once ctx is
// done or the bus is closed.
func (b *Bus) ConsumeInbound(ctx context.Context) (chat.Event, bool) {
	return consume(ctx, b, b.inbound)
}

// PublishOutbound queues a generated message for delivery.
func (b *Bus) PublishOutbound(ctx context.Context, m chat.Message) error {
	return publish(ctx, b, b.outbound, m)
}

// ConsumeOutbound returns the next generated message. The bool is false once
// ctx is done or the bus is closed.
func (b *Bus) ConsumeOutbound(ctx context.Context) (chat.Message, bool) {
	return consume(ctx, b, b.outbound)
}

// Close stops the bus. Queued entries that were not consumed are dropped.
// Close is idempotent.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func publish[T any](ctx context.Context, b *Bus, ch chan<- T, v T) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case ch <- v:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func consume[T any](ctx context.Context, b *Bus, ch <-chan T) (T, bool) {
	var zero T
	select {
	case <-b.done:
		return zero, false
	default:
	}
	select {
	case v := <-ch:
		return v, true
	case <-b.done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}
