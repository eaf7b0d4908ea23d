package interfaces

import (
	"context"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// EventHandler processes one published event
type EventHandler func(ctx context.Context, event models.EventRecord) error

// EventSink receives structured crawl events from the scheduler. There
// is no global bus; a sink is injected where events are produced.
type EventSink interface {
	Publish(ctx context.Context, event models.EventRecord) error
	Subscribe(code models.EventCode, handler EventHandler) func()
	Close() error
}
