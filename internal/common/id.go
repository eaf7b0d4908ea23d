package common

import (
	"github.com/google/uuid"
)

// NewCrawlID generates a unique crawl ID with the "crawl_" prefix
// Format: crawl_<uuid>
func NewCrawlID() string {
	return "crawl_" + uuid.New().String()
}

// NewPageID generates a time-ordered UUIDv7 page ID so that lexicographic
// sort is approximately chronological
func NewPageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
