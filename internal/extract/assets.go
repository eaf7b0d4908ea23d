package extract

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// AssetExtractor emits one record per referenced media or subresource:
// images, audio, video, stylesheets, scripts, and fonts
type AssetExtractor struct{}

func NewAssetExtractor() *AssetExtractor {
	return &AssetExtractor{}
}

func (e *AssetExtractor) Name() string { return "assets" }

func (e *AssetExtractor) Datasets() []string {
	return []string{models.DatasetAssets}
}

func (e *AssetExtractor) Capabilities() []string {
	return []string{models.CapSEOCore}
}

func (e *AssetExtractor) Extract(page *models.PageRecord, res *interfaces.RenderResult) ([]interfaces.Record, error) {
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
	seen := make(map[string]bool)
	add := func(rawURL string, assetType models.AssetType, tag, alt string) {
		resolved := resolveURL(rawURL, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		records = append(records, interfaces.Record{
			Dataset: models.DatasetAssets,
			Value: &models.AssetRecord{
				PageID: page.PageID,
				URL:    resolved,
				Type:   assetType,
				Alt:    alt,
				Tag:    tag,
			},
		})
	}

	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		add(src, models.AssetImage, "img", alt)
	})
	doc.Find("video[src], video source[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src, models.AssetVideo, goquery.NodeName(s), "")
	})
	doc.Find("audio[src], audio source[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src, models.AssetAudio, goquery.NodeName(s), "")
	})
	doc.Find(`link[rel="stylesheet"][href]`).Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href, models.AssetCSS, "link", "")
	})
	doc.Find("script[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src, models.AssetJS, "script", "")
	})
	doc.Find(`link[rel="preload"][href]`).Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		as, _ := s.Attr("as")
		add(href, assetTypeForPreload(as, href), "link", "")
	})

	return records, nil
}

func assetTypeForPreload(as, href string) models.AssetType {
	switch as {
	case "font":
		return models.AssetFont
	case "image":
		return models.AssetImage
	case "style":
		return models.AssetCSS
	case "script":
		return models.AssetJS
	case "audio":
		return models.AssetAudio
	case "video":
		return models.AssetVideo
	}
	switch strings.ToLower(path.Ext(href)) {
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return models.AssetFont
	}
	return models.AssetOther
}
