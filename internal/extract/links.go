package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// LinkExtractor emits one edge record per anchor, in document order,
// with the coarse DOM region each link was found in
type LinkExtractor struct {
	mode interfaces.RenderMode
}

func NewLinkExtractor(mode interfaces.RenderMode) *LinkExtractor {
	return &LinkExtractor{mode: mode}
}

func (e *LinkExtractor) Name() string { return "links" }

func (e *LinkExtractor) Datasets() []string {
	return []string{models.DatasetEdges}
}

func (e *LinkExtractor) Capabilities() []string {
	return []string{models.CapLinkGraph}
}

func (e *LinkExtractor) Extract(page *models.PageRecord, res *interfaces.RenderResult) ([]interfaces.Record, error) {
	doc, err := parseDocument(res)
	if err != nil {
		return nil, err
	}

	baseRaw := res.FinalURL
	if baseRaw == "" {
		baseRaw = page.URL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		base = nil
	}

	var records []interfaces.Record
	order := 0
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if shouldSkipLink(href) {
			return
		}
		target := resolveURL(href, base)
		if target == "" {
			return
		}

		rel, _ := s.Attr("rel")
		records = append(records, interfaces.Record{
			Dataset: models.DatasetEdges,
			Value: &models.EdgeRecord{
				SourcePageID: page.PageID,
				TargetURL:    target,
				AnchorText:   strings.TrimSpace(s.Text()),
				Rel:          rel,
				Internal:     sameHost(target, base),
				Location:     domLocation(s),
				RenderMode:   string(e.mode),
				DOMOrder:     order,
			},
		})
		order++
	})
	return records, nil
}
