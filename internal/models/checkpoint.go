package models

import "time"

// DatasetCheckpoint records the writer's position in one dataset at
// snapshot time. Closed-part metadata is rebuilt from disk on resume.
type DatasetCheckpoint struct {
	NextPartSeq int   `json:"next_part_seq"`
	Records     int64 `json:"records"`
}

// CheckpointSnapshot is the serializable view of a crawl that makes it
// resumable across process termination
type CheckpointSnapshot struct {
	CrawlID   string                       `json:"crawl_id"`
	CreatedAt time.Time                    `json:"created_at"`
	StartedAt time.Time                    `json:"started_at"`
	Pending   []URLTask                    `json:"pending"`
	Completed []string                     `json:"completed"` // normalized URLs
	Datasets  map[string]DatasetCheckpoint `json:"datasets"`
	EventSeq  int64                        `json:"event_seq"`
}
