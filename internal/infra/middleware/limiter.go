package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key (a client identity or IP).
// Entries idle for longer than idleTTL are dropped by a cleanup goroutine
// that stops when ctx is done.
type KeyedLimiter struct {
	perSecond rate.Limit
	burst     int
	idleTTL   time.Duration

	mu      sync.Mutex
	clients map[string]*keyedClient
}

type keyedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing perSecond events with the given
// burst for each key.
func NewKeyedLimiter(ctx context.Context, perSecond float64, burst int) *KeyedLimiter {
	kl := &KeyedLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		idleTTL:   3 * time.Minute,
		clients:   make(map[string]*keyedClient),
	}
	go kl.cleanup(ctx, time.Minute)
	return kl
}

// Allow reports whether key may perform one more event now.
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.limiterFor(key).Allow()
}

// Wait blocks until key may perform one more event or ctx ends.
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.limiterFor(key).Wait(ctx)
}

// Forget drops the bucket of key.
func (kl *KeyedLimiter) Forget(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	delete(kl.clients, key)
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.clients)
}

func (kl *KeyedLimiter) limiterFor(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	c, ok := kl.clients[key]
	if !ok {
		c = &keyedClient{limiter: rate.NewLimiter(kl.perSecond, kl.burst)}
		kl.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

func (kl *KeyedLimiter) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			kl.evict(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (kl *KeyedLimiter) evict(now time.Time) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for k, c := range kl.clients {
		if now.Sub(c.lastSeen) > kl.idleTTL {
			delete(kl.clients, k)
		}
	}
}
