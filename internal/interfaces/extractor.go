package interfaces

import (
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// Record is one typed record routed to a dataset writer
type Record struct {
	Dataset string
	Value   interface{}
}

// Extractor is a pure function from one rendered page to typed records.
// Extractors never perform I/O. Each extractor declares which datasets
// it writes and which capability tokens it contributes; composition is
// by intersection with the configured profile.
type Extractor interface {
	Name() string
	Datasets() []string
	Capabilities() []string
	Extract(page *models.PageRecord, res *RenderResult) ([]Record, error)
}
