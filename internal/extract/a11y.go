package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// AccessibilityExtractor produces one summary record per page covering
// the core checks downstream a11y tooling expects: alt text coverage,
// heading structure, landmarks, form labelling, and document metadata.
type AccessibilityExtractor struct{}

func NewAccessibilityExtractor() *AccessibilityExtractor {
	return &AccessibilityExtractor{}
}

func (e *AccessibilityExtractor) Name() string { return "a11y" }

func (e *AccessibilityExtractor) Datasets() []string {
	return []string{models.DatasetAccessibility}
}

func (e *AccessibilityExtractor) Capabilities() []string {
	return []string{models.CapA11yCore}
}

func (e *AccessibilityExtractor) Extract(page *models.PageRecord, res *interfaces.RenderResult) ([]interfaces.Record, error) {
	doc, err := parseDocument(res)
	if err != nil {
		return nil, err
	}

	record := &models.AccessibilityRecord{PageID: page.PageID}

	e.checkDocument(doc, record)
	e.checkImages(doc, record)
	e.checkHeadings(doc, record)
	e.checkLandmarks(doc, record)
	e.checkForms(doc, record)
	e.checkLinks(doc, record)

	return []interfaces.Record{{Dataset: models.DatasetAccessibility, Value: record}}, nil
}

func (e *AccessibilityExtractor) checkDocument(doc *goquery.Document, record *models.AccessibilityRecord) {
	if lang, _ := doc.Find("html").Attr("lang"); strings.TrimSpace(lang) == "" {
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind: models.A11yMissingLang,
			Tag:  "html",
		})
	}
	if strings.TrimSpace(doc.Find("head title").Text()) == "" {
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind: models.A11yMissingTitle,
			Tag:  "title",
		})
	}
}

func (e *AccessibilityExtractor) checkImages(doc *goquery.Document, record *models.AccessibilityRecord) {
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		record.ImageCount++
		if _, ok := s.Attr("alt"); ok {
			return
		}
		// role=presentation marks the image decorative
		if role, _ := s.Attr("role"); role == "presentation" || role == "none" {
			return
		}
		record.ImagesMissingAlt++
		src, _ := s.Attr("src")
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind:    models.A11yMissingAlt,
			Tag:     "img",
			Context: src,
		})
	})
}

func (e *AccessibilityExtractor) checkHeadings(doc *goquery.Document, record *models.AccessibilityRecord) {
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		record.HeadingOutline = append(record.HeadingOutline, level)
		if prev > 0 && level > prev+1 {
			record.Issues = append(record.Issues, models.A11yIssue{
				Kind:   models.A11yHeadingSkip,
				Tag:    goquery.NodeName(s),
				Detail: fmt.Sprintf("h%d follows h%d", level, prev),
			})
		}
		prev = level
	})
}

func (e *AccessibilityExtractor) checkLandmarks(doc *goquery.Document, record *models.AccessibilityRecord) {
	for _, tag := range []string{"header", "nav", "main", "footer", "aside"} {
		if doc.Find(tag).Length() > 0 {
			record.Landmarks = append(record.Landmarks, tag)
		}
	}
	doc.Find("[role]").Each(func(i int, s *goquery.Selection) {
		role, _ := s.Attr("role")
		switch role {
		case "banner", "navigation", "main", "contentinfo", "complementary", "search":
			record.Landmarks = append(record.Landmarks, "role="+role)
		}
	})

	if len(record.Landmarks) == 0 {
		record.Issues = append(record.Issues, models.A11yIssue{Kind: models.A11yNoLandmarks})
	}
	if doc.Find("main").Length() > 1 {
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind: models.A11yDuplicateMain,
			Tag:  "main",
		})
	}
}

func (e *AccessibilityExtractor) checkForms(doc *goquery.Document, record *models.AccessibilityRecord) {
	doc.Find("input, select, textarea").Each(func(i int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "hidden" || t == "submit" || t == "button" || t == "image" {
			return
		}
		record.InputCount++
		if inputIsLabeled(doc, s) {
			record.InputsLabeled++
			return
		}
		name, _ := s.Attr("name")
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind:    models.A11yMissingLabel,
			Tag:     goquery.NodeName(s),
			Context: name,
		})
	})
}

func inputIsLabeled(doc *goquery.Document, s *goquery.Selection) bool {
	if aria, _ := s.Attr("aria-label"); strings.TrimSpace(aria) != "" {
		return true
	}
	if _, ok := s.Attr("aria-labelledby"); ok {
		return true
	}
	if s.Closest("label").Length() > 0 {
		return true
	}
	if id, ok := s.Attr("id"); ok && id != "" {
		return doc.Find(fmt.Sprintf(`label[for="%s"]`, id)).Length() > 0
	}
	return false
}

func (e *AccessibilityExtractor) checkLinks(doc *goquery.Document, record *models.AccessibilityRecord) {
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if aria, _ := s.Attr("aria-label"); strings.TrimSpace(aria) != "" {
			return
		}
		// An image with alt text inside the anchor names the link.
		named := false
		s.Find("img[alt]").Each(func(i int, img *goquery.Selection) {
			if alt, _ := img.Attr("alt"); strings.TrimSpace(alt) != "" {
				named = true
			}
		})
		if named {
			return
		}
		href, _ := s.Attr("href")
		record.Issues = append(record.Issues, models.A11yIssue{
			Kind:    models.A11yEmptyLink,
			Tag:     "a",
			Context: href,
		})
	})
}
