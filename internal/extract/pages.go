package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// PageExtractor finalizes the page record itself: it applies the
// noindex hint from meta robots directives and the X-Robots-Tag header,
// then emits the record into the pages dataset.
type PageExtractor struct{}

func NewPageExtractor() *PageExtractor {
	return &PageExtractor{}
}

func (e *PageExtractor) Name() string { return "pages" }

func (e *PageExtractor) Datasets() []string {
	return []string{models.DatasetPages}
}

func (e *PageExtractor) Capabilities() []string {
	return []string{models.CapSEOCore}
}

func (e *PageExtractor) Extract(page *models.PageRecord, res *interfaces.RenderResult) ([]interfaces.Record, error) {
	record := *page
	record.NoindexHint = hasNoindex(res)
	return []interfaces.Record{{Dataset: models.DatasetPages, Value: &record}}, nil
}

func hasNoindex(res *interfaces.RenderResult) bool {
	if res.Headers != nil {
		for _, v := range res.Headers.Values("X-Robots-Tag") {
			if strings.Contains(strings.ToLower(v), "noindex") {
				return true
			}
		}
	}

	doc, err := parseDocument(res)
	if err != nil {
		return false
	}
	noindex := false
	doc.Find(`meta[name="robots"], meta[name="googlebot"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		if strings.Contains(strings.ToLower(content), "noindex") {
			noindex = true
			return false
		}
		return true
	})
	return noindex
}
