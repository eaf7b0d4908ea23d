package atlas

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// Deterministic record ordering applied before final hashing, so
// dataset hashes are insensitive to crawl order:
//
//	pages          normalized URL
//	edges          (source page id, DOM order)
//	assets         (page id, asset URL)
//	errors         (timestamp, URL)
//	events         (timestamp, sequence)
//	accessibility  page id
//
// Keys are built as strings with fixed-width numeric fields so a plain
// lexicographic sort yields the composite order.

func sortKeyFor(dataset string, line []byte) string {
	switch dataset {
	case models.DatasetPages:
		var k struct {
			NormalizedURL string `json:"normalized_url"`
		}
		json.Unmarshal(line, &k)
		return k.NormalizedURL
	case models.DatasetEdges:
		var k struct {
			SourcePageID string `json:"source_page_id"`
			DOMOrder     int    `json:"dom_order"`
		}
		json.Unmarshal(line, &k)
		return fmt.Sprintf("%s\x00%012d", k.SourcePageID, k.DOMOrder)
	case models.DatasetAssets:
		var k struct {
			PageID string `json:"page_id"`
			URL    string `json:"url"`
		}
		json.Unmarshal(line, &k)
		return k.PageID + "\x00" + k.URL
	case models.DatasetErrors:
		var k struct {
			Timestamp time.Time `json:"timestamp"`
			URL       string    `json:"url"`
		}
		json.Unmarshal(line, &k)
		return fmt.Sprintf("%020d\x00%s", k.Timestamp.UnixNano(), k.URL)
	case models.DatasetEvents:
		var k struct {
			Timestamp time.Time `json:"timestamp"`
			Seq       int64     `json:"seq"`
		}
		json.Unmarshal(line, &k)
		return fmt.Sprintf("%020d\x00%012d", k.Timestamp.UnixNano(), k.Seq)
	case models.DatasetAccessibility:
		var k struct {
			PageID string `json:"page_id"`
		}
		json.Unmarshal(line, &k)
		return k.PageID
	}
	// Unknown datasets sort by raw line.
	return string(line)
}
