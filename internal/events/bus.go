// Package events implements the injected event sink: a pub/sub bus
// with typed handlers and a bounded per-code replay ring, so late
// subscribers still see recent history.
package events

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// DefaultReplayDepth is how many past events per code a new subscriber
// receives
const DefaultReplayDepth = 64

type subscription struct {
	id      int
	handler interfaces.EventHandler
}

// Bus implements interfaces.EventSink. Handlers run synchronously on
// the publisher's goroutine; a handler error is logged, never fatal.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.EventCode][]subscription
	replay      map[models.EventCode][]models.EventRecord
	replayDepth int
	nextID      int
	closed      bool
	logger      arbor.ILogger
}

// NewBus creates an event bus. replayDepth <= 0 selects the default.
func NewBus(replayDepth int, logger arbor.ILogger) *Bus {
	if replayDepth <= 0 {
		replayDepth = DefaultReplayDepth
	}
	return &Bus{
		subscribers: make(map[models.EventCode][]subscription),
		replay:      make(map[models.EventCode][]models.EventRecord),
		replayDepth: replayDepth,
		logger:      logger,
	}
}

// Publish delivers the event to every handler subscribed to its code
// and records it in the replay ring
func (b *Bus) Publish(ctx context.Context, event models.EventRecord) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	ring := append(b.replay[event.Code], event)
	if len(ring) > b.replayDepth {
		ring = ring[len(ring)-b.replayDepth:]
	}
	b.replay[event.Code] = ring
	handlers := append([]subscription(nil), b.subscribers[event.Code]...)
	b.mu.Unlock()

	for _, sub := range handlers {
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Warn().
				Err(err).
				Str("code", string(event.Code)).
				Msg("Event handler failed")
		}
	}
	return nil
}

// Subscribe registers a handler for one event code and immediately
// replays the ring to it. The returned function unsubscribes; it is
// safe to call more than once.
func (b *Bus) Subscribe(code models.EventCode, handler interfaces.EventHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[code] = append(b.subscribers[code], subscription{id: id, handler: handler})
	history := append([]models.EventRecord(nil), b.replay[code]...)
	b.mu.Unlock()

	for _, event := range history {
		if err := handler(context.Background(), event); err != nil {
			b.logger.Warn().
				Err(err).
				Str("code", string(code)).
				Msg("Event handler failed during replay")
		}
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[code]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[code] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Close drops all subscribers; subsequent publishes are no-ops
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[models.EventCode][]subscription)
	b.replay = make(map[models.EventCode][]models.EventRecord)
	return nil
}
