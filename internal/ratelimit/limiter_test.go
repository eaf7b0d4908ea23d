package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireImmediateWithinBurst(t *testing.T) {
	l := New(10, 2)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "https://a.test"))
	require.NoError(t, l.Acquire(ctx, "https://a.test"))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "burst tokens should not block")
}

func TestPerHostRateBound(t *testing.T) {
	// Per-origin 5 rps, generous global. In any 1s window the origin
	// must see at most ceil(1*5)+1 dispatches.
	const perHost = 5.0
	l := New(100, perHost)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var stamps []time.Time
	for {
		if err := l.Acquire(ctx, "https://a.test"); err != nil {
			break
		}
		stamps = append(stamps, time.Now())
	}

	window := time.Second
	bound := int(window.Seconds()*perHost) + 1
	for i := range stamps {
		count := 1
		for j := i + 1; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < window {
				count++
			} else {
				break
			}
		}
		assert.LessOrEqual(t, count, bound,
			"window starting at stamp %d dispatched %d > %d", i, count, bound)
	}
}

func TestGlobalBucketAlsoThrottles(t *testing.T) {
	// Global 2 rps dominates even across distinct origins.
	l := New(2, 100)
	ctx := context.Background()

	start := time.Now()
	origins := []string{"https://a.test", "https://b.test", "https://c.test", "https://d.test"}
	for _, o := range origins {
		require.NoError(t, l.Acquire(ctx, o))
	}
	// 4 acquisitions at 2 rps with burst 2: roughly 1s of waiting
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
}

func TestAcquireCancellation(t *testing.T) {
	l := New(0.1, 0.1) // nearly empty buckets after the first token
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://a.test"))

	cancelCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Acquire(cancelCtx, "https://a.test")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return promptly after cancellation")
	}
}

func TestGCOrigins(t *testing.T) {
	l := New(100, 100)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "https://a.test"))
	require.NoError(t, l.Acquire(ctx, "https://b.test"))
	assert.Equal(t, 2, l.OriginCount())

	assert.Equal(t, 0, l.GCOrigins(time.Minute), "fresh origins survive")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, l.GCOrigins(10*time.Millisecond))
	assert.Equal(t, 0, l.OriginCount())
}
