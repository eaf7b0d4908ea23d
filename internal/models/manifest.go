package models

import "time"

// Producer identifies the engine that wrote an archive
type Producer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Build   string `json:"build,omitempty"`
}

// NormalizationRules documents the URL canonicalization in effect so
// consumers can reproduce the transform
type NormalizationRules struct {
	LowercaseSchemeHost bool     `json:"lowercase_scheme_host"`
	PunycodeHost        bool     `json:"punycode_host"`
	StripDefaultPort    bool     `json:"strip_default_port"`
	StripFragment       bool     `json:"strip_fragment"`
	StripParams         []string `json:"strip_params,omitempty"`
	SortQuery           bool     `json:"sort_query"`
	PreservePathCase    bool     `json:"preserve_path_case"`
}

// PrivacyPolicy documents the privacy settings in effect during capture
type PrivacyPolicy struct {
	StripCookies      bool `json:"strip_cookies"`
	StripAuthHeaders  bool `json:"strip_auth_headers"`
	RedactInputValues bool `json:"redact_input_values"`
	RedactForms       bool `json:"redact_forms"`
}

// RobotsPolicy documents robots handling, including whether the
// override mode was ever exercised
type RobotsPolicy struct {
	Respect       bool `json:"respect"`
	OverridesUsed bool `json:"overrides_used"`
}

// Manifest is the top-level description of an Atlas archive. Every
// declared hash must recompute from the physical files.
type Manifest struct {
	AtlasVersion  string             `json:"atlas_version"`
	CrawlID       string             `json:"crawl_id"`
	Producer      Producer           `json:"producer"`
	CreatedAt     time.Time          `json:"created_at"`
	ConfigHash    string             `json:"config_hash"`
	Normalization NormalizationRules `json:"normalization"`
	Privacy       PrivacyPolicy      `json:"privacy"`
	Robots        RobotsPolicy       `json:"robots"`
	Capabilities  []string           `json:"capabilities"`
	Datasets      []DatasetMeta      `json:"datasets"`
	Blobs         *BlobStats         `json:"blobs,omitempty"`
	AuditHash     string             `json:"audit_hash"`
	Incomplete    bool               `json:"incomplete"`
	FatalClass    string             `json:"fatal_class,omitempty"`
	Notes         []string           `json:"notes,omitempty"`
}

// Capabilities is the contents of capabilities.v1.json: the set of
// analyses this archive supports, derived from crawl configuration
type Capabilities struct {
	Version            string   `json:"version"`
	Capabilities       []string `json:"capabilities"`
	MinConsumerVersion string   `json:"min_consumer_version"`
}

// Capability tokens from the closed vocabulary
const (
	CapSEOCore      = "seo.core"
	CapA11yCore     = "a11y.core"
	CapRenderDOM    = "render.dom"
	CapReplayHTML   = "replay.html"
	CapReplayCSS    = "replay.css"
	CapReplayImages = "replay.images"
	CapLinkGraph    = "graph.links"
)

// Summary is the human-oriented summary.json document
type Summary struct {
	CrawlID        string    `json:"crawl_id"`
	Seeds          []string  `json:"seeds"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Pages          int64     `json:"pages"`
	Edges          int64     `json:"edges"`
	Assets         int64     `json:"assets"`
	Errors         int64     `json:"errors"`
	Events         int64     `json:"events"`
	PagesPerSecond float64   `json:"pages_per_second"`
	Incomplete     bool      `json:"incomplete"`
}
