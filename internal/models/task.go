package models

// DiscoverySource identifies how a URL entered the frontier
type DiscoverySource string

const (
	SourceSeed     DiscoverySource = "seed"
	SourceSitemap  DiscoverySource = "sitemap"
	SourceLink     DiscoverySource = "link"
	SourceRedirect DiscoverySource = "redirect"
)

// URLTask is one unit of crawl work. The normalized URL is the identity
// used for deduplication; no two in-flight tasks share one.
type URLTask struct {
	URL           string          `json:"url"`
	NormalizedURL string          `json:"normalized_url"`
	Depth         int             `json:"depth"`
	Source        DiscoverySource `json:"source"`
	Referrer      string          `json:"referrer,omitempty"`
	Attempt       int             `json:"attempt"`
}
