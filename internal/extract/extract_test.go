package extract

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

const sampleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Sample</title>
  <link rel="stylesheet" href="/styles/main.css">
  <link rel="preload" href="/fonts/inter.woff2" as="font">
  <script src="/js/app.js"></script>
</head>
<body>
  <header>
    <a href="/home">Home</a>
    <nav><a href="/docs">Docs</a></nav>
  </header>
  <main>
    <h1>Welcome</h1>
    <h3>Skipped level</h3>
    <a href="https://external.example.org/page" rel="nofollow">Elsewhere</a>
    <a href="mailto:team@example.com">Mail</a>
    <a href="#section">Anchor</a>
    <img src="/img/logo.png" alt="Logo">
    <img src="/img/hero.png">
    <form>
      <label for="q">Search</label>
      <input type="text" id="q" name="q">
      <input type="text" name="unlabeled">
      <input type="submit" value="Go">
    </form>
  </main>
  <footer><a href="/privacy">Privacy</a></footer>
</body>
</html>`

func samplePage(t *testing.T) *models.PageRecord {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.PageRecord{
		PageID:         id.String(),
		URL:            "https://site.example.com/start",
		NormalizedURL:  "https://site.example.com/start",
		FinalURL:       "https://site.example.com/start",
		Status:         200,
		Source:         models.SourceSeed,
		RobotsDecision: models.RobotsAllow,
		CapturedAt:     time.Now().UTC(),
	}
}

func sampleResult() *interfaces.RenderResult {
	return &interfaces.RenderResult{
		FinalURL: "https://site.example.com/start",
		Status:   200,
		Body:     []byte(sampleHTML),
	}
}

func TestLinkExtractorEdges(t *testing.T) {
	page := samplePage(t)
	ex := NewLinkExtractor(interfaces.ModeRaw)

	records, err := ex.Extract(page, sampleResult())
	require.NoError(t, err)

	edges := make([]*models.EdgeRecord, 0, len(records))
	for _, r := range records {
		assert.Equal(t, models.DatasetEdges, r.Dataset)
		edges = append(edges, r.Value.(*models.EdgeRecord))
	}

	// mailto: and fragment-only links are skipped
	require.Len(t, edges, 4)

	assert.Equal(t, "https://site.example.com/home", edges[0].TargetURL)
	assert.Equal(t, models.LocationHeader, edges[0].Location)
	assert.Equal(t, "https://site.example.com/docs", edges[1].TargetURL)
	assert.Equal(t, models.LocationNav, edges[1].Location)
	assert.Equal(t, "https://external.example.org/page", edges[2].TargetURL)
	assert.False(t, edges[2].Internal)
	assert.Equal(t, "nofollow", edges[2].Rel)
	assert.Equal(t, models.LocationMain, edges[2].Location)
	assert.Equal(t, models.LocationFooter, edges[3].Location)

	for i, e := range edges {
		assert.Equal(t, page.PageID, e.SourcePageID)
		assert.Equal(t, i, e.DOMOrder)
	}
	assert.True(t, edges[0].Internal)
}

func TestAssetExtractor(t *testing.T) {
	page := samplePage(t)
	ex := NewAssetExtractor()

	records, err := ex.Extract(page, sampleResult())
	require.NoError(t, err)

	byURL := make(map[string]*models.AssetRecord)
	for _, r := range records {
		a := r.Value.(*models.AssetRecord)
		byURL[a.URL] = a
	}

	logo := byURL["https://site.example.com/img/logo.png"]
	require.NotNil(t, logo)
	assert.Equal(t, models.AssetImage, logo.Type)
	assert.Equal(t, "Logo", logo.Alt)

	css := byURL["https://site.example.com/styles/main.css"]
	require.NotNil(t, css)
	assert.Equal(t, models.AssetCSS, css.Type)

	js := byURL["https://site.example.com/js/app.js"]
	require.NotNil(t, js)
	assert.Equal(t, models.AssetJS, js.Type)

	font := byURL["https://site.example.com/fonts/inter.woff2"]
	require.NotNil(t, font)
	assert.Equal(t, models.AssetFont, font.Type)
}

func TestAccessibilityExtractor(t *testing.T) {
	page := samplePage(t)
	ex := NewAccessibilityExtractor()

	records, err := ex.Extract(page, sampleResult())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0].Value.(*models.AccessibilityRecord)
	assert.Equal(t, page.PageID, rec.PageID)
	assert.Equal(t, 2, rec.ImageCount)
	assert.Equal(t, 1, rec.ImagesMissingAlt)
	assert.Equal(t, 2, rec.InputCount)
	assert.Equal(t, 1, rec.InputsLabeled)
	assert.Equal(t, []int{1, 3}, rec.HeadingOutline)
	assert.Contains(t, rec.Landmarks, "main")
	assert.Contains(t, rec.Landmarks, "nav")

	kinds := make(map[models.A11yIssueKind]int)
	for _, issue := range rec.Issues {
		kinds[issue.Kind]++
	}
	assert.Equal(t, 1, kinds[models.A11yMissingAlt])
	assert.Equal(t, 1, kinds[models.A11yHeadingSkip])
	assert.Equal(t, 1, kinds[models.A11yMissingLabel])
	assert.Zero(t, kinds[models.A11yMissingLang])
	assert.Zero(t, kinds[models.A11yMissingTitle])
}

func TestPageExtractorNoindex(t *testing.T) {
	page := samplePage(t)
	ex := NewPageExtractor()

	records, err := ex.Extract(page, sampleResult())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Value.(*models.PageRecord).NoindexHint)

	res := sampleResult()
	res.Body = []byte(`<html><head><meta name="robots" content="noindex, nofollow"></head><body></body></html>`)
	records, err = ex.Extract(page, res)
	require.NoError(t, err)
	assert.True(t, records[0].Value.(*models.PageRecord).NoindexHint)
}

func TestRegistryEnabledByProfile(t *testing.T) {
	reg := DefaultRegistry(interfaces.ModeRaw)

	all := reg.Enabled(nil)
	assert.Len(t, all, 4)

	seoOnly := reg.Enabled([]string{models.CapSEOCore})
	names := make([]string, 0, len(seoOnly))
	for _, ex := range seoOnly {
		names = append(names, ex.Name())
	}
	assert.ElementsMatch(t, []string{"pages", "assets"}, names)

	a11yOnly := reg.Enabled([]string{models.CapA11yCore})
	require.Len(t, a11yOnly, 1)
	assert.Equal(t, "a11y", a11yOnly[0].Name())
}

func TestDeriveCapabilities(t *testing.T) {
	reg := DefaultRegistry(interfaces.ModeFull)
	enabled := reg.Enabled(nil)

	caps := DeriveCapabilities(enabled, interfaces.ModeFull, "html+css", true)
	assert.Contains(t, caps, models.CapSEOCore)
	assert.Contains(t, caps, models.CapA11yCore)
	assert.Contains(t, caps, models.CapLinkGraph)
	assert.Contains(t, caps, models.CapRenderDOM)
	assert.Contains(t, caps, models.CapReplayHTML)
	assert.Contains(t, caps, models.CapReplayCSS)
	assert.NotContains(t, caps, models.CapReplayImages)

	rawCaps := DeriveCapabilities(enabled, interfaces.ModeRaw, "html", false)
	assert.NotContains(t, rawCaps, models.CapRenderDOM)
	assert.NotContains(t, rawCaps, models.CapReplayHTML)
}
