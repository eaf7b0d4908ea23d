// Package ratelimit throttles request issuance with two token buckets:
// one global and one per origin (scheme+host+port). A request proceeds
// only when both buckets hold a token. Bucket capacity equals the refill
// rate, giving a one-second burst.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a global and a per-origin request rate
type Limiter struct {
	global     *rate.Limiter
	mu         sync.Mutex
	origins    map[string]*originLimiter
	perHostRPS float64
}

type originLimiter struct {
	limiter *rate.Limiter
	// queue serializes waiters so per-origin dispatch is FIFO in
	// acquisition order
	queue    chan struct{}
	lastUsed time.Time
}

// New creates a limiter with the given global and per-origin rates in
// requests per second
func New(globalRPS, perHostRPS float64) *Limiter {
	return &Limiter{
		global:     rate.NewLimiter(rate.Limit(globalRPS), burstFor(globalRPS)),
		origins:    make(map[string]*originLimiter),
		perHostRPS: perHostRPS,
	}
}

// burstFor sizes a bucket to its refill rate (a 1-second burst), with a
// floor of one token
func burstFor(rps float64) int {
	b := int(math.Ceil(rps))
	if b < 1 {
		b = 1
	}
	return b
}

// Acquire suspends until both the origin bucket and the global bucket
// hold a token, or the context is cancelled. Cancellation returns
// promptly and consumes no token.
func (l *Limiter) Acquire(ctx context.Context, origin string) error {
	ol := l.originLimiter(origin)

	// FIFO position for this origin
	select {
	case ol.queue <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ol.queue }()

	if err := ol.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.global.Wait(ctx)
}

func (l *Limiter) originLimiter(origin string) *originLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	ol, ok := l.origins[origin]
	if !ok {
		ol = &originLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.perHostRPS), burstFor(l.perHostRPS)),
			queue:   make(chan struct{}, 1),
		}
		l.origins[origin] = ol
	}
	ol.lastUsed = time.Now()
	return ol
}

// GCOrigins drops per-origin buckets idle for longer than quiescence
// and returns how many were collected
func (l *Limiter) GCOrigins(quiescence time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-quiescence)
	collected := 0
	for origin, ol := range l.origins {
		if ol.lastUsed.Before(cutoff) && len(ol.queue) == 0 {
			delete(l.origins, origin)
			collected++
		}
	}
	return collected
}

// OriginCount returns the number of live per-origin buckets
func (l *Limiter) OriginCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.origins)
}
