package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// capabilityDatasets maps each capability token to the dataset it
// requires to be non-empty
var capabilityDatasets = map[string]string{
	models.CapSEOCore:   models.DatasetPages,
	models.CapA11yCore:  models.DatasetAccessibility,
	models.CapLinkGraph: models.DatasetEdges,
}

// FilterCapabilities drops capability tokens whose required dataset
// ended up empty, so a crawl that found no links does not declare a
// link graph it cannot back
func FilterCapabilities(capabilities []string, datasets []models.DatasetMeta) []string {
	records := make(map[string]int64, len(datasets))
	for _, ds := range datasets {
		records[ds.Name] = ds.Records
	}

	kept := make([]string, 0, len(capabilities))
	for _, cap := range capabilities {
		if required, ok := capabilityDatasets[cap]; ok && records[required] == 0 {
			continue
		}
		kept = append(kept, cap)
	}
	return kept
}

// VerifyReport lists every integrity problem found in an archive. An
// empty Problems list means the archive checks out.
type VerifyReport struct {
	ManifestPath string
	Legacy       bool
	Problems     []string
}

func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

func (r *VerifyReport) addf(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify recomputes every hash an archive declares from the physical
// bytes: part hashes, dataset hashes, the audit hash, record counts,
// and capability/dataset consistency. It never trusts the manifest.
func Verify(path string) (*VerifyReport, error) {
	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	return verifyArchive(archive)
}

func verifyArchive(archive *Archive) (*VerifyReport, error) {
	report := &VerifyReport{}

	manifestData, manifestPath, err := readManifest(archive)
	if err != nil {
		return nil, err
	}
	report.ManifestPath = manifestPath

	var manifest models.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	datasetRecords := make(map[string]int64, len(manifest.Datasets))
	for _, ds := range manifest.Datasets {
		datasetRecords[ds.Name] = ds.Records
		verifyDataset(archive, report, ds)
	}

	if got := AuditHash(manifest.Datasets); got != manifest.AuditHash {
		report.addf("audit_hash mismatch: declared %s, recomputed %s", manifest.AuditHash, got)
	}

	for _, cap := range manifest.Capabilities {
		required, ok := capabilityDatasets[cap]
		if !ok {
			continue
		}
		if datasetRecords[required] == 0 {
			report.addf("capability %s requires non-empty dataset %s", cap, required)
		}
	}

	if !archive.Has("capabilities.v1.json") {
		report.addf("missing capabilities.v1.json")
	}
	if !archive.Has("provenance." + models.DatasetVersion + ".jsonl.zst") {
		report.addf("missing provenance dataset")
	}

	// Version-less dataset directories mark the legacy layout.
	for _, name := range archive.Names() {
		dir, _, found := strings.Cut(name, "/")
		if found && strings.Contains(name, "_part_") && !strings.Contains(dir, ".v") {
			report.Legacy = true
			break
		}
	}

	return report, nil
}

// readManifest finds the manifest under its current or v1-pure name
func readManifest(archive *Archive) ([]byte, string, error) {
	for _, name := range []string{"manifest.json", "manifest.v1.json"} {
		if archive.Has(name) {
			data, err := archive.ReadFile(name)
			return data, name, err
		}
	}
	return nil, "", fmt.Errorf("archive has no manifest")
}

func verifyDataset(archive *Archive, report *VerifyReport, ds models.DatasetMeta) {
	var (
		records         int64
		compressedBytes int64
	)
	for _, part := range ds.Parts {
		data, err := archive.ReadFile(part.File)
		if err != nil {
			report.addf("dataset %s: part %s missing from container", ds.Name, part.File)
			continue
		}

		if int64(len(data)) != part.CompressedBytes {
			report.addf("dataset %s: part %s is %d bytes, declared %d", ds.Name, part.File, len(data), part.CompressedBytes)
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != part.SHA256 {
			report.addf("dataset %s: part %s hash mismatch", ds.Name, part.File)
		}

		raw, err := decompressBytes(data)
		if err != nil {
			report.addf("dataset %s: part %s does not decompress: %v", ds.Name, part.File, err)
			continue
		}
		lines := int64(len(splitLines(raw)))
		if lines != part.Records {
			report.addf("dataset %s: part %s holds %d records, declared %d", ds.Name, part.File, lines, part.Records)
		}
		records += lines
		compressedBytes += int64(len(data))
	}

	if records != ds.Records {
		report.addf("dataset %s: %d records on disk, declared %d", ds.Name, records, ds.Records)
	}
	if compressedBytes != ds.CompressedBytes {
		report.addf("dataset %s: %d compressed bytes on disk, declared %d", ds.Name, compressedBytes, ds.CompressedBytes)
	}
	if got := DatasetHash(ds.Parts); got != ds.Hash {
		report.addf("dataset %s: dataset hash mismatch: declared %s, recomputed %s", ds.Name, ds.Hash, got)
	}

	if ds.SchemaURI != "" && !archive.Has(ds.SchemaURI) {
		report.addf("dataset %s: schema %s missing from container", ds.Name, ds.SchemaURI)
	}
}
