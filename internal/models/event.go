package models

import "time"

// EventCode identifies a structured crawl log entry
type EventCode string

const (
	EventCrawlStarted    EventCode = "crawl_started"
	EventCrawlPaused     EventCode = "crawl_paused"
	EventCrawlResumed    EventCode = "crawl_resumed"
	EventCrawlCancelled  EventCode = "crawl_cancelled"
	EventCrawlFinished   EventCode = "crawl_finished"
	EventPageCompleted   EventCode = "page_completed"
	EventPageError       EventCode = "page_error"
	EventPolicyDenied    EventCode = "policy_denied"
	EventRobotsDecision  EventCode = "robots_decision"
	EventRobotsOverride  EventCode = "robots_override"
	EventDegradedRender  EventCode = "degraded_render"
	EventHeartbeat       EventCode = "heartbeat"
	EventCheckpointSaved EventCode = "checkpoint_saved"
	EventCheckpointError EventCode = "checkpoint_error"
	EventHomographWarn   EventCode = "homograph_warning"
)

// EventRecord is one structured crawl log entry. Seq gives events a
// strict total order within a crawl.
type EventRecord struct {
	Timestamp time.Time              `json:"timestamp" validate:"required"`
	Level     string                 `json:"level" validate:"required"`
	Code      EventCode              `json:"code" validate:"required"`
	CrawlID   string                 `json:"crawl_id" validate:"required"`
	PageID    string                 `json:"page_id,omitempty"`
	Seq       int64                  `json:"seq" validate:"gte=0"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}
