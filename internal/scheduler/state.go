package scheduler

import "time"

// State is the crawl lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateCancelling State = "cancelling"
	StateFinalizing State = "finalizing"
	StateFinished   State = "finished"
)

// Progress is a point-in-time view of crawl throughput
type Progress struct {
	Queued         int     `json:"queued"`
	InFlight       int64   `json:"in_flight"`
	Completed      int64   `json:"completed"`
	Errors         int64   `json:"errors"`
	Duplicates     int     `json:"duplicates"`
	BytesFetched   int64   `json:"bytes_fetched"`
	PagesPerSecond float64 `json:"pages_per_second"`
}

// Status is the scheduler's externally visible state
type Status struct {
	CrawlID   string    `json:"crawl_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Progress  Progress  `json:"progress"`
}
