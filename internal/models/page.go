package models

import "time"

// RobotsDecision records how the policy gate ruled on a fetched page
type RobotsDecision string

const (
	RobotsAllow    RobotsDecision = "allow"
	RobotsDisallow RobotsDecision = "disallow"
	RobotsOverride RobotsDecision = "override"
)

// NavTiming holds navigation-timing milestones in milliseconds relative
// to navigation start
type NavTiming struct {
	NavStart         time.Time `json:"nav_start"`
	DOMContentLoaded int64     `json:"dom_content_loaded_ms,omitempty"`
	LoadEventEnd     int64     `json:"load_event_end_ms,omitempty"`
	NetworkIdle      int64     `json:"network_idle_ms,omitempty"`
}

// PageRecord is one crawled page. PageID is a time-ordered UUID minted
// once, before fetch, so it is stable across retries.
type PageRecord struct {
	PageID         string          `json:"page_id" validate:"required,uuid"`
	PreviousPageID string          `json:"previous_page_id,omitempty"`
	URL            string          `json:"url" validate:"required"`
	NormalizedURL  string          `json:"normalized_url" validate:"required"`
	FinalURL       string          `json:"final_url"`
	Status         int             `json:"status" validate:"gte=0,lte=599"`
	ContentType    string          `json:"content_type,omitempty"`
	ResponseSize   int64           `json:"response_size" validate:"gte=0"`
	ResponseTimeMs int64           `json:"response_time_ms" validate:"gte=0"`
	BodySHA256     string          `json:"body_sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	DOMSHA256      string          `json:"dom_sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	BodyBlobRef    string          `json:"body_blob_ref,omitempty"`
	Depth          int             `json:"depth" validate:"gte=0"`
	Source         DiscoverySource `json:"source" validate:"required,oneof=seed sitemap link redirect"`
	Referrer       string          `json:"referrer,omitempty"`
	RobotsDecision RobotsDecision  `json:"robots_decision" validate:"required,oneof=allow disallow override"`
	NoindexHint    bool            `json:"noindex_hint,omitempty"`
	WaitCondition  string          `json:"wait_condition,omitempty"`
	Timing         *NavTiming      `json:"timing,omitempty"`
	CapturedAt     time.Time       `json:"captured_at" validate:"required"`
}
