package atlas

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// buildArchive writes a small crawl through the real writer and builder
// and packs it, returning the .atls path
func buildArchive(t *testing.T) string {
	t.Helper()

	w := newTestWriter(t, DefaultRotateBytes)
	for i := 0; i < 3; i++ {
		page := testPage(t, fmt.Sprintf("https://example.com/v%d", i))
		require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: page}))
	}
	metas, err := w.Finalize()
	require.NoError(t, err)

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	builder := NewBuilder(w.StagingDir(), arbor.NewLogger())
	_, err = builder.Finalize(BuildInfo{
		CrawlID:      "crawl_test",
		Seeds:        []string{"https://example.com/v0"},
		ConfigHash:   "deadbeef",
		Capabilities: []string{models.CapSEOCore},
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
	}, metas, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "crawl.atls")
	require.NoError(t, Pack(w.StagingDir(), out))
	return out
}

func TestVerifyCleanArchive(t *testing.T) {
	path := buildArchive(t)

	report, err := Verify(path)
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
	assert.Equal(t, "manifest.json", report.ManifestPath)
	assert.False(t, report.Legacy)
}

func TestVerifyDetectsTamperedPart(t *testing.T) {
	path := buildArchive(t)

	// Rewrite the container with one byte of the pages part flipped.
	src, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer src.Close()

	tampered := filepath.Join(t.TempDir(), "tampered.atls")
	out, err := os.Create(tampered)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, f := range src.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()

		if f.Name == "pages.v1/pages.v1_part_000.jsonl.zst" {
			data[len(data)-1] ^= 0xFF
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store})
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	report, err := Verify(tampered)
	require.NoError(t, err)
	assert.False(t, report.OK())
}

func TestVerifyDetectsEmptyCapabilityDataset(t *testing.T) {
	w := newTestWriter(t, DefaultRotateBytes)
	page := testPage(t, "https://example.com/")
	require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: page}))
	metas, err := w.Finalize()
	require.NoError(t, err)

	builder := NewBuilder(w.StagingDir(), arbor.NewLogger())
	// a11y.core declared but no accessibility dataset was written.
	_, err = builder.Finalize(BuildInfo{
		CrawlID:      "crawl_caps",
		ConfigHash:   "deadbeef",
		Capabilities: []string{models.CapSEOCore, models.CapA11yCore},
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
	}, metas, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "caps.atls")
	require.NoError(t, Pack(w.StagingDir(), out))

	report, err := Verify(out)
	require.NoError(t, err)
	assert.False(t, report.OK())
}

func TestPackSkipsWorkingFiles(t *testing.T) {
	w := newTestWriter(t, DefaultRotateBytes)
	page := testPage(t, "https://example.com/")
	require.NoError(t, w.Write(interfaces.Record{Dataset: models.DatasetPages, Value: page}))
	metas, err := w.Finalize()
	require.NoError(t, err)

	builder := NewBuilder(w.StagingDir(), arbor.NewLogger())
	_, err = builder.Finalize(BuildInfo{
		CrawlID:      "crawl_skip",
		ConfigHash:   "deadbeef",
		Capabilities: []string{models.CapSEOCore},
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
	}, metas, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(w.StagingDir(), "checkpoint.json"), []byte("{}"), 0644))

	out := filepath.Join(t.TempDir(), "skip.atls")
	require.NoError(t, Pack(w.StagingDir(), out))

	archive, err := OpenArchive(out)
	require.NoError(t, err)
	defer archive.Close()
	assert.False(t, archive.Has("checkpoint.json"))
	assert.True(t, archive.Has("manifest.json"))
	assert.True(t, archive.Has("summary.json"))
	assert.True(t, archive.Has("capabilities.v1.json"))
}
