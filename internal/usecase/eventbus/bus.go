// Package eventbus is the in-process event bus shared by the engine, the
// agent, the gateway and the self-play runner.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"muehle-agent/internal/domain"
)

// DefaultQueueSize is the per-subscriber backlog before events are dropped.
const DefaultQueueSize = 256

type filter struct {
	eventType domain.EventType // empty matches every type
	sessionID string           // empty matches every session
}

func (f filter) match(ev domain.Event) bool {
	return (f.eventType == "" || f.eventType == ev.Type) &&
		(f.sessionID == "" || f.sessionID == ev.SessionID)
}

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns one worker goroutine, so a subscriber sees events in
// publish order.
type subscription struct {
	id      uint64
	filter  filter
	handler domain.EventHandler
	queue   chan delivery
	once    sync.Once
}

func (s *subscription) stop() { s.once.Do(func() { close(s.queue) }) }

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscription
	nextID    atomic.Uint64
	logger    *slog.Logger
	queueSize int
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the per-subscriber backlog.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{logger: logger, queueSize: DefaultQueueSize}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish queues an event for every matching subscriber. It never blocks:
// a subscriber whose backlog is full loses the event.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	// Handlers outlive the publishing call.
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.match(event) {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber backlog full",
				"event", string(event.Type),
				"subscription", sub.id,
			)
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(filter{eventType: eventType}, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(filter{}, handler)
}

// SubscribeSession registers a handler for every event of one session.
func (b *Bus) SubscribeSession(sessionID string, handler domain.EventHandler) func() {
	return b.add(filter{sessionID: sessionID}, handler)
}

// Dropped returns how many deliveries were lost to full backlogs.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

func (b *Bus) add(f filter, handler domain.EventHandler) func() {
	sub := &subscription{
		id:      b.nextID.Add(1),
		filter:  f,
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		sub.stop()
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Close prevents new publishes and waits for every queued event to be handled.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
