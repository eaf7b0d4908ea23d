package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/common"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// MinConsumerVersion is the lowest reader version that understands the
// archives this producer writes
const MinConsumerVersion = "1.0.0"

// BuildInfo carries everything the finalize pass needs beyond the
// dataset metadata itself
type BuildInfo struct {
	CrawlID       string
	Seeds         []string
	ConfigHash    string
	Normalization models.NormalizationRules
	Privacy       models.PrivacyPolicy
	Robots        models.RobotsPolicy
	Capabilities  []string
	StartedAt     time.Time
	FinishedAt    time.Time
	Incomplete    bool
	FatalClass    string
	Notes         []string
}

// Builder assembles the archive-level documents at finalize time
type Builder struct {
	stagingDir string
	logger     arbor.ILogger
}

func NewBuilder(stagingDir string, logger arbor.ILogger) *Builder {
	return &Builder{stagingDir: stagingDir, logger: logger}
}

// Finalize writes, in order: the capabilities file, one provenance
// record per dataset, the summary, and last the manifest. It returns
// the manifest for the caller to inspect.
func (b *Builder) Finalize(info BuildInfo, datasets []models.DatasetMeta, blobs *models.BlobStats) (*models.Manifest, error) {
	caps := models.Capabilities{
		Version:            common.AtlasVersion,
		Capabilities:       info.Capabilities,
		MinConsumerVersion: MinConsumerVersion,
	}
	if err := b.writeJSON("capabilities.v1.json", caps); err != nil {
		return nil, err
	}

	if err := b.writeProvenance(info, datasets); err != nil {
		return nil, err
	}

	if err := b.writeJSON("summary.json", buildSummary(info, datasets)); err != nil {
		return nil, err
	}

	manifest := &models.Manifest{
		AtlasVersion: common.AtlasVersion,
		CrawlID:      info.CrawlID,
		Producer: models.Producer{
			Name:    common.ProducerName,
			Version: common.Version,
			Build:   common.Build,
		},
		CreatedAt:     time.Now().UTC(),
		ConfigHash:    info.ConfigHash,
		Normalization: info.Normalization,
		Privacy:       info.Privacy,
		Robots:        info.Robots,
		Capabilities:  info.Capabilities,
		Datasets:      datasets,
		AuditHash:     AuditHash(datasets),
		Incomplete:    info.Incomplete,
		FatalClass:    info.FatalClass,
		Notes:         info.Notes,
	}
	if blobs != nil && blobs.Count > 0 {
		manifest.Blobs = blobs
	}
	if err := b.writeJSON("manifest.json", manifest); err != nil {
		return nil, err
	}

	b.logger.Info().
		Str("crawl_id", info.CrawlID).
		Int("datasets", len(datasets)).
		Str("audit_hash", manifest.AuditHash).
		Bool("incomplete", manifest.Incomplete).
		Msg("Archive manifest assembled")
	return manifest, nil
}

// writeProvenance emits one lineage record per dataset into
// provenance.v1.jsonl.zst. Raw extractions have no inputs.
func (b *Builder) writeProvenance(info BuildInfo, datasets []models.DatasetMeta) error {
	producer := models.Producer{
		Name:    common.ProducerName,
		Version: common.Version,
		Build:   common.Build,
	}

	var lines []byte
	for _, ds := range datasets {
		rec := models.ProvenanceRecord{
			Dataset:     ds.Name,
			Version:     ds.Version,
			Producer:    producer,
			CreatedAt:   info.FinishedAt,
			Inputs:      []models.DatasetInput{},
			RecordCount: ds.Records,
			Hash:        ds.Hash,
		}
		// The accessibility dataset is derived from page captures.
		if ds.Name == models.DatasetAccessibility {
			for _, other := range datasets {
				if other.Name == models.DatasetPages {
					rec.Inputs = append(rec.Inputs, models.DatasetInput{Name: other.Name, Hash: other.Hash})
				}
			}
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal provenance record: %w", err)
		}
		lines = append(lines, line...)
		lines = append(lines, '\n')
	}

	path := filepath.Join(b.stagingDir, "provenance."+models.DatasetVersion+".jsonl.zst")
	if err := os.WriteFile(path, compressBytes(lines), 0644); err != nil {
		return fmt.Errorf("failed to write provenance: %w", err)
	}
	return nil
}

func (b *Builder) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(b.stagingDir, name), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func buildSummary(info BuildInfo, datasets []models.DatasetMeta) models.Summary {
	counts := make(map[string]int64, len(datasets))
	for _, ds := range datasets {
		counts[ds.Name] = ds.Records
	}

	elapsed := info.FinishedAt.Sub(info.StartedAt).Seconds()
	pps := 0.0
	if elapsed > 0 {
		pps = float64(counts[models.DatasetPages]) / elapsed
	}

	return models.Summary{
		CrawlID:        info.CrawlID,
		Seeds:          info.Seeds,
		StartedAt:      info.StartedAt,
		FinishedAt:     info.FinishedAt,
		ElapsedSeconds: elapsed,
		Pages:          counts[models.DatasetPages],
		Edges:          counts[models.DatasetEdges],
		Assets:         counts[models.DatasetAssets],
		Errors:         counts[models.DatasetErrors],
		Events:         counts[models.DatasetEvents],
		PagesPerSecond: pps,
		Incomplete:     info.Incomplete,
	}
}

// ConfigHash returns the SHA-256 of the canonical JSON encoding of the
// effective configuration
func ConfigHash(config interface{}) (string, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to hash config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
