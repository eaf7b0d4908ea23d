package atlas

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

func newTestWriter(t *testing.T, rotateBytes int64) *Writer {
	t.Helper()
	w, err := NewWriter(WriterOptions{
		StagingDir:  t.TempDir(),
		RotateBytes: rotateBytes,
		Logger:      arbor.NewLogger(),
	})
	require.NoError(t, err)
	return w
}

func testPage(t *testing.T, url string) *models.PageRecord {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.PageRecord{
		PageID:         id.String(),
		URL:            url,
		NormalizedURL:  url,
		FinalURL:       url,
		Status:         200,
		Source:         models.SourceSeed,
		RobotsDecision: models.RobotsAllow,
		CapturedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriterRejectsInvalidRecord(t *testing.T) {
	w := newTestWriter(t, DefaultRotateBytes)

	bad := testPage(t, "https://example.com/")
	bad.PageID = "not-a-uuid"

	err := w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: bad})
	require.Error(t, err)
	var sv *SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, models.DatasetPages, sv.Dataset)

	metas, err := w.Finalize()
	require.NoError(t, err)
	for _, m := range metas {
		assert.Zero(t, m.Records)
	}
}

func TestWriterFinalizeMetadata(t *testing.T) {
	w := newTestWriter(t, DefaultRotateBytes)

	for i := 0; i < 5; i++ {
		page := testPage(t, fmt.Sprintf("https://example.com/p%d", i))
		require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: page}))
	}

	metas, err := w.Finalize()
	require.NoError(t, err)
	require.Len(t, metas, 1)

	meta := metas[0]
	assert.Equal(t, models.DatasetPages, meta.Name)
	assert.Equal(t, models.DatasetVersion, meta.Version)
	assert.EqualValues(t, 5, meta.Records)
	require.Len(t, meta.Parts, 1)
	assert.Equal(t, "pages.v1/pages.v1_part_000.jsonl.zst", meta.Parts[0].File)
	assert.EqualValues(t, 5, meta.Parts[0].Records)
	assert.Len(t, meta.Parts[0].SHA256, 64)
	assert.Equal(t, DatasetHash(meta.Parts), meta.Hash)
	assert.Equal(t, "schemas/pages.v1.schema.json", meta.SchemaURI)

	// Schema file exists in staging.
	_, err = os.Stat(filepath.Join(w.StagingDir(), "schemas", "pages.v1.schema.json"))
	require.NoError(t, err)
}

func TestWriterRotatesAtThreshold(t *testing.T) {
	w := newTestWriter(t, 512)

	for i := 0; i < 50; i++ {
		page := testPage(t, fmt.Sprintf("https://example.com/page-%03d", i))
		require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: page}))
	}

	metas, err := w.Finalize()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Greater(t, len(metas[0].Parts), 1)

	total := int64(0)
	for _, p := range metas[0].Parts {
		total += p.Records
	}
	assert.EqualValues(t, 50, total)
}

func TestWriterDeterministicAcrossInsertionOrder(t *testing.T) {
	urls := []string{
		"https://example.com/zebra",
		"https://example.com/alpha",
		"https://example.com/middle",
		"https://example.com/beta",
	}
	pages := make([]*models.PageRecord, len(urls))
	for i, u := range urls {
		pages[i] = testPage(t, u)
	}

	finalize := func(order []int) []models.DatasetMeta {
		w := newTestWriter(t, DefaultRotateBytes)
		for _, idx := range order {
			require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: pages[idx]}))
		}
		metas, err := w.Finalize()
		require.NoError(t, err)
		return metas
	}

	a := finalize([]int{0, 1, 2, 3})
	b := finalize([]int{3, 2, 1, 0})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Hash, b[0].Hash)
	assert.Equal(t, a[0].Parts[0].SHA256, b[0].Parts[0].SHA256)
}

func TestWriterSortsEdgesBySourceAndDOMOrder(t *testing.T) {
	w := newTestWriter(t, DefaultRotateBytes)

	src, err := uuid.NewV7()
	require.NoError(t, err)
	for _, order := range []int{2, 0, 1} {
		edge := &models.EdgeRecord{
			SourcePageID: src.String(),
			TargetURL:    fmt.Sprintf("https://example.com/t%d", order),
			Location:     models.LocationMain,
			RenderMode:   "raw",
			DOMOrder:     order,
		}
		require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetEdges, Value: edge}))
	}

	metas, err := w.Finalize()
	require.NoError(t, err)
	require.Len(t, metas, 1)

	raw, err := decompressFile(filepath.Join(w.StagingDir(), metas[0].Parts[0].File))
	require.NoError(t, err)
	lines := splitLines(raw)
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), `"dom_order":0`)
	assert.Contains(t, string(lines[1]), `"dom_order":1`)
	assert.Contains(t, string(lines[2]), `"dom_order":2`)
}

func TestWriterResumeEquivalence(t *testing.T) {
	pages := make([]*models.PageRecord, 10)
	for i := range pages {
		pages[i] = testPage(t, fmt.Sprintf("https://example.com/r%02d", i))
	}

	// Uninterrupted run.
	direct := newTestWriter(t, DefaultRotateBytes)
	for _, p := range pages {
		require.NoError(t, direct.Write(interfaces.Record{Dataset: models.DatasetPages, Value: p}))
	}
	directMetas, err := direct.Finalize()
	require.NoError(t, err)

	// Interrupted run: snapshot after 6 records, tear the open part,
	// resume, write the rest.
	staging := t.TempDir()
	first, err := NewWriter(WriterOptions{StagingDir: staging, Logger: arbor.NewLogger()})
	require.NoError(t, err)
	for _, p := range pages[:6] {
		require.NoError(t, first.Write(interfaces.Record{Dataset: models.DatasetPages, Value: p}))
	}
	checkpoints, err := first.Snapshot()
	require.NoError(t, err)

	openPart := filepath.Join(staging, "pages.v1", "pages.v1_part_000.jsonl")
	f, err := os.OpenFile(openPart, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"page_id":"torn`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	resumed, err := ResumeWriter(WriterOptions{StagingDir: staging, Logger: arbor.NewLogger()}, checkpoints)
	require.NoError(t, err)
	for _, p := range pages[6:] {
		require.NoError(t, resumed.Write(interfaces.Record{Dataset: models.DatasetPages, Value: p}))
	}
	resumedMetas, err := resumed.Finalize()
	require.NoError(t, err)

	require.Len(t, directMetas, 1)
	require.Len(t, resumedMetas, 1)
	assert.Equal(t, directMetas[0].Records, resumedMetas[0].Records)
	assert.Equal(t, directMetas[0].Hash, resumedMetas[0].Hash)
}

func TestDatasetHashInsensitiveToPartOrder(t *testing.T) {
	parts := []models.PartMeta{
		{SHA256: "bbb"},
		{SHA256: "aaa"},
	}
	swapped := []models.PartMeta{
		{SHA256: "aaa"},
		{SHA256: "bbb"},
	}
	assert.Equal(t, DatasetHash(parts), DatasetHash(swapped))
}
