package bus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/dicebot/internal/bus"
	"github.com/MrWong99/dicebot/internal/chat"
)

func TestBus_RoundTrip(t *testing.T) {
	t.Parallel()
	b := bus.New(0)
	t.Cleanup(b.Close)
	ctx := context.Background()

	if err := b.PublishInbound(ctx, chat.Event{MessageID: "m1"}); err != nil {
		t.Fatalf("PublishInbound: %v", err)
	}
	if err := b.PublishOutbound(ctx, chat.Message{ID: "r1"}); err != nil {
		t.Fatalf("PublishOutbound: %v", err)
	}

	ev, ok := b.ConsumeInbound(ctx)
	if !ok || ev.MessageID != "m1" {
		t.Errorf("ConsumeInbound = %+v, %v", ev, ok)
	}
	m, ok := b.ConsumeOutbound(ctx)
	if !ok || m.ID != "r1" {
		t.Errorf("ConsumeOutbound = %+v, %v", m, ok)
	}
}

func TestBus_PreservesOrder(t *testing.T) {
	t.Parallel()
	b := bus.New(10)
	t.Cleanup(b.Close)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = b.PublishInbound(ctx, chat.Event{MessageID: id})
	}
	for _, want := range []string{"a", "b", "c"} {
		ev, _ := b.ConsumeInbound(ctx)
		if ev.MessageID != want {
			t.Fatalf("got %q, want %q", ev.MessageID, want)
		}
	}
}

func TestBus_ConsumeStopsOnContext(t *testing.T) {
	t.Parallel()
	b := bus.New(1)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound on empty bus returned ok")
	}
}

func TestBus_PublishBlocksWhenFull(t *testing.T) {
	t.Parallel()
	b := bus.New(1)
	t.Cleanup(b.Close)

	if err := b.PublishOutbound(context.Background(), chat.Message{ID: "1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.PublishOutbound(ctx, chat.Message{ID: "2"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("publish on full bus err = %v, want DeadlineExceeded", err)
	}
}

func TestBus_Close(t *testing.T) {
	t.Parallel()
	b := bus.New(1)

	done := make(chan bool)
	go func() {
		_, ok := b.ConsumeInbound(context.Background())
		done <- ok
	}()

	b.Close()
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("ConsumeInbound returned ok after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("ConsumeInbound did not return after Close")
	}
	if err := b.PublishInbound(context.Background(), chat.Event{}); !errors.Is(err, bus.ErrClosed) {
		t.Errorf("publish after Close err = %v, want ErrClosed", err)
	}
}
