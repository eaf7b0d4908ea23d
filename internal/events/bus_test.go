package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

func record(code models.EventCode, seq int64) models.EventRecord {
	return models.EventRecord{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Code:      code,
		CrawlID:   "crawl_bus",
		Seq:       seq,
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus(0, arbor.NewLogger())
	defer bus.Close()

	var got []models.EventRecord
	bus.Subscribe(models.EventPageCompleted, func(ctx context.Context, e models.EventRecord) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), record(models.EventPageCompleted, 1)))
	require.NoError(t, bus.Publish(context.Background(), record(models.EventHeartbeat, 2)))

	require.Len(t, got, 1)
	assert.Equal(t, models.EventPageCompleted, got[0].Code)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(0, arbor.NewLogger())
	defer bus.Close()

	count := 0
	unsubscribe := bus.Subscribe(models.EventHeartbeat, func(ctx context.Context, e models.EventRecord) error {
		count++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), record(models.EventHeartbeat, 1)))
	unsubscribe()
	unsubscribe() // second call is a no-op
	require.NoError(t, bus.Publish(context.Background(), record(models.EventHeartbeat, 2)))

	assert.Equal(t, 1, count)
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	bus := NewBus(4, arbor.NewLogger())
	defer bus.Close()

	for seq := int64(1); seq <= 6; seq++ {
		require.NoError(t, bus.Publish(context.Background(), record(models.EventPageCompleted, seq)))
	}

	var seqs []int64
	bus.Subscribe(models.EventPageCompleted, func(ctx context.Context, e models.EventRecord) error {
		seqs = append(seqs, e.Seq)
		return nil
	})

	// Ring depth 4: only the last four events replay, in order.
	assert.Equal(t, []int64{3, 4, 5, 6}, seqs)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(0, arbor.NewLogger())

	count := 0
	bus.Subscribe(models.EventCrawlFinished, func(ctx context.Context, e models.EventRecord) error {
		count++
		return nil
	})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(context.Background(), record(models.EventCrawlFinished, 1)))
	assert.Zero(t, count)
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(0, arbor.NewLogger())
	defer bus.Close()

	reached := false
	bus.Subscribe(models.EventPageError, func(ctx context.Context, e models.EventRecord) error {
		return assert.AnError
	})
	bus.Subscribe(models.EventPageError, func(ctx context.Context, e models.EventRecord) error {
		reached = true
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), record(models.EventPageError, 1)))
	assert.True(t, reached)
}
