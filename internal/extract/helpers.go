package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// parseDocument builds a goquery document from the render result,
// preferring the post-render DOM over the raw body
func parseDocument(res *interfaces.RenderResult) (*goquery.Document, error) {
	html := res.DOM
	if html == "" {
		html = string(res.Body)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// shouldSkipLink filters out non-navigable href values
func shouldSkipLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "sms:", "ftp:", "data:"} {
		if strings.HasPrefix(href, scheme) {
			return true
		}
	}
	return false
}

// resolveURL resolves a potentially relative href against a base URL
func resolveURL(href string, base *url.URL) string {
	if base == nil {
		if parsed, err := url.Parse(href); err == nil && parsed.IsAbs() {
			return parsed.String()
		}
		return ""
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return ""
	}
	return resolved.String()
}

// sameHost reports whether a target URL stays on the base URL's host
func sameHost(target string, base *url.URL) bool {
	if base == nil {
		return false
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Hostname(), base.Hostname())
}

// domLocation classifies where in the document a node sits. A nav
// inside a header counts as nav.
func domLocation(s *goquery.Selection) models.DOMLocation {
	if s.Closest("nav").Length() > 0 {
		return models.LocationNav
	}
	if s.Closest("header").Length() > 0 {
		return models.LocationHeader
	}
	if s.Closest("footer").Length() > 0 {
		return models.LocationFooter
	}
	if s.Closest("main").Length() > 0 {
		return models.LocationMain
	}
	return models.LocationOther
}
