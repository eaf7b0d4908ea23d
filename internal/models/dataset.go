package models

// Dataset names recognized by the writer
const (
	DatasetPages         = "pages"
	DatasetEdges         = "edges"
	DatasetAssets        = "assets"
	DatasetErrors        = "errors"
	DatasetEvents        = "events"
	DatasetAccessibility = "accessibility"
	DatasetProvenance    = "provenance"
)

// DatasetVersion is the current dataset layout version tag
const DatasetVersion = "v1"

// PartMeta describes one finalized, immutable part file of a dataset.
// SHA256 is computed over the compressed bytes.
type PartMeta struct {
	File            string `json:"file"`
	Seq             int    `json:"seq"`
	Records         int64  `json:"records"`
	CompressedBytes int64  `json:"compressed_bytes"`
	SHA256          string `json:"sha256"`
}

// DatasetMeta is the per-dataset metadata returned by the writer at
// finalize and embedded in the manifest. Hash is a SHA-256 over the
// sorted concatenation of per-part hashes.
type DatasetMeta struct {
	Name            string     `json:"name"`
	Version         string     `json:"version"`
	Records         int64      `json:"records"`
	CompressedBytes int64      `json:"compressed_bytes"`
	Parts           []PartMeta `json:"parts"`
	Hash            string     `json:"hash"`
	SchemaURI       string     `json:"schema_uri"`
}

// BlobStats summarizes the content-addressed blob store
type BlobStats struct {
	Count      int64  `json:"count"`
	TotalBytes int64  `json:"total_bytes"`
	Deduped    int64  `json:"deduped"`
	MerkleRoot string `json:"merkle_root,omitempty"`
}
