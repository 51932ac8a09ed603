package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"muehle-agent/internal/domain"
)

func newTestBus(opts ...Option) *Bus {
	return New(slog.Default(), opts...)
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventMoveApplied {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Publish(context.Background(), newEvent(domain.EventGameStarted))
	bus.Close() // drain
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Publish(context.Background(), newEvent(domain.EventSearchCompleted))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestSubscribeSession(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeSession("s1", func(_ context.Context, e domain.Event) {
		if e.SessionID != "s1" {
			t.Errorf("unexpected session %q", e.SessionID)
		}
		got.Add(1)
	})

	ctx := context.Background()
	bus.Publish(ctx, domain.NewEvent(domain.EventMoveApplied, "s1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventMoveApplied, "s2", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventGameFinished, "s1", nil))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestDeliveryOrder(t *testing.T) {
	bus := newTestBus()

	var (
		mu  sync.Mutex
		seq []int
	)
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, e domain.Event) {
		mu.Lock()
		seq = append(seq, int(e.Payload[0]-'0'))
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		ev := newEvent(domain.EventMoveApplied)
		ev.Payload = []byte{byte('0' + i)}
		bus.Publish(context.Background(), ev)
	}
	bus.Close()

	for i, v := range seq {
		if v != i {
			t.Fatalf("out of order delivery: %v", seq)
		}
	}
	if len(seq) != 10 {
		t.Fatalf("expected 10 deliveries, got %d", len(seq))
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	unsub()
	unsub() // idempotent
	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Close()

	if got.Load() != 0 {
		t.Fatalf("expected no delivery after unsub, got %d", got.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	// First subscriber panics
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	// Second subscriber should still fire
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2 (second handler), got %d", got.Load())
	}
}

func TestFullBacklogDrops(t *testing.T) {
	bus := newTestBus(WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	ctx := context.Background()
	bus.Publish(ctx, newEvent(domain.EventMoveApplied))
	<-started
	bus.Publish(ctx, newEvent(domain.EventMoveApplied)) // queued
	bus.Publish(ctx, newEvent(domain.EventMoveApplied)) // dropped
	close(release)
	bus.Close()

	if bus.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", bus.Dropped())
	}
}

func TestHandlerContextOutlivesPublisher(t *testing.T) {
	bus := newTestBus()

	errc := make(chan error, 1)
	bus.Subscribe(domain.EventMoveApplied, func(ctx context.Context, _ domain.Event) {
		errc <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, newEvent(domain.EventMoveApplied))
	cancel()
	bus.Close()

	if err := <-errc; err != nil {
		t.Fatalf("handler saw cancelled context: %v", err)
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Close() // should block until the handler finishes

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	// After close, new publishes and subscriptions are no-ops
	bus.Publish(context.Background(), newEvent(domain.EventMoveApplied))
	bus.Subscribe(domain.EventMoveApplied, func(_ context.Context, _ domain.Event) { got.Add(1) })()
	bus.Close()
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
}
