// Package atlas implements the Atlas archive: streaming dataset
// writers, the content-addressed blob store, schema emission, manifest
// assembly, the .atls container, and integrity verification.
package atlas

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// DefaultRotateBytes is the uncompressed part size that triggers
// rotation
const DefaultRotateBytes = 8 * 1024 * 1024

// SchemaViolationError marks a record the writer rejected during
// validation. The record becomes an error record; the crawl continues.
type SchemaViolationError struct {
	Dataset string
	Err     error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("record rejected by %s schema: %v", e.Dataset, e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// WriterOptions configures a Writer
type WriterOptions struct {
	StagingDir  string
	RotateBytes int64
	Logger      arbor.ILogger
}

// Writer streams typed records into per-dataset JSONL parts under a
// staging directory. Parts rotate at a byte threshold and are
// compressed and hashed on close. Finalize applies each dataset's
// deterministic ordering and returns the metadata the manifest embeds.
type Writer struct {
	stagingDir  string
	rotateBytes int64
	validate    *validator.Validate
	logger      arbor.ILogger

	mu       sync.Mutex
	datasets map[string]*datasetWriter
}

type datasetWriter struct {
	name      string
	dir       string // <staging>/<name>.v1
	relDir    string // <name>.v1
	schemaURI string

	file        *os.File
	bufw        *bufio.Writer
	partSeq     int
	openRecords int64
	openBytes   int64

	totalRecords int64
	parts        []models.PartMeta
}

// NewWriter creates a Writer over a fresh or existing staging directory
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.StagingDir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if opts.RotateBytes <= 0 {
		opts.RotateBytes = DefaultRotateBytes
	}
	if err := os.MkdirAll(opts.StagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Writer{
		stagingDir:  opts.StagingDir,
		rotateBytes: opts.RotateBytes,
		validate:    validator.New(),
		logger:      opts.Logger,
		datasets:    make(map[string]*datasetWriter),
	}, nil
}

// StagingDir returns the writer's staging directory
func (w *Writer) StagingDir() string { return w.stagingDir }

// Write validates one record and appends it to its dataset's open part.
// A validation failure returns a *SchemaViolationError and writes
// nothing.
func (w *Writer) Write(rec interfaces.Record) error {
	if err := w.validate.Struct(rec.Value); err != nil {
		return &SchemaViolationError{Dataset: rec.Dataset, Err: err}
	}

	line, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", rec.Dataset, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ds, err := w.dataset(rec.Dataset)
	if err != nil {
		return err
	}
	return ds.append(line, w.rotateBytes)
}

// dataset returns the writer for a dataset, initializing its staging
// directory and schema file on first use. Caller holds w.mu.
func (w *Writer) dataset(name string) (*datasetWriter, error) {
	if ds, ok := w.datasets[name]; ok {
		return ds, nil
	}

	relDir := name + "." + models.DatasetVersion
	dir := filepath.Join(w.stagingDir, relDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	schemaURI, err := writeSchema(w.stagingDir, name)
	if err != nil {
		return nil, err
	}

	ds := &datasetWriter{
		name:      name,
		dir:       dir,
		relDir:    relDir,
		schemaURI: schemaURI,
	}
	w.datasets[name] = ds
	return ds, nil
}

func (d *datasetWriter) partFileName(seq int) string {
	return fmt.Sprintf("%s.%s_part_%03d.jsonl.zst", d.name, models.DatasetVersion, seq)
}

func (d *datasetWriter) openPartPath() string {
	return filepath.Join(d.dir, fmt.Sprintf("%s.%s_part_%03d.jsonl", d.name, models.DatasetVersion, d.partSeq))
}

func (d *datasetWriter) append(line []byte, rotateBytes int64) error {
	if d.file == nil {
		file, err := os.OpenFile(d.openPartPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open part file: %w", err)
		}
		d.file = file
		d.bufw = bufio.NewWriter(file)
	}

	if _, err := d.bufw.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := d.bufw.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	d.openRecords++
	d.totalRecords++
	d.openBytes += int64(len(line)) + 1

	if d.openBytes >= rotateBytes {
		return d.rotate()
	}
	return nil
}

// rotate closes the open JSONL part, compresses it, hashes the
// compressed bytes, and records the part metadata
func (d *datasetWriter) rotate() error {
	if d.file == nil || d.openRecords == 0 {
		return nil
	}
	if err := d.bufw.Flush(); err != nil {
		return fmt.Errorf("failed to flush part: %w", err)
	}
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("failed to close part: %w", err)
	}

	openPath := d.openPartPath()
	raw, err := os.ReadFile(openPath)
	if err != nil {
		return fmt.Errorf("failed to read part for compression: %w", err)
	}
	compressed := compressBytes(raw)

	name := d.partFileName(d.partSeq)
	if err := os.WriteFile(filepath.Join(d.dir, name), compressed, 0644); err != nil {
		return fmt.Errorf("failed to write compressed part: %w", err)
	}
	if err := os.Remove(openPath); err != nil {
		return fmt.Errorf("failed to remove uncompressed part: %w", err)
	}

	sum := sha256.Sum256(compressed)
	d.parts = append(d.parts, models.PartMeta{
		File:            d.relDir + "/" + name,
		Seq:             d.partSeq,
		Records:         d.openRecords,
		CompressedBytes: int64(len(compressed)),
		SHA256:          hex.EncodeToString(sum[:]),
	})

	d.partSeq++
	d.openRecords = 0
	d.openBytes = 0
	d.file = nil
	d.bufw = nil
	return nil
}

// Snapshot reports each dataset's position for checkpointing. Any open
// part is flushed to disk first so the staging directory is consistent
// with the snapshot.
func (w *Writer) Snapshot() (map[string]models.DatasetCheckpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]models.DatasetCheckpoint, len(w.datasets))
	for name, ds := range w.datasets {
		if ds.bufw != nil {
			if err := ds.bufw.Flush(); err != nil {
				return nil, fmt.Errorf("failed to flush %s: %w", name, err)
			}
			if err := ds.file.Sync(); err != nil {
				return nil, fmt.Errorf("failed to sync %s: %w", name, err)
			}
		}
		out[name] = models.DatasetCheckpoint{
			NextPartSeq: ds.partSeq,
			Records:     ds.totalRecords,
		}
	}
	return out, nil
}

// Finalize closes all datasets, applies each dataset's deterministic
// record ordering, rewrites the sorted parts, and returns the metadata
// the manifest embeds. The Writer is unusable afterwards.
func (w *Writer) Finalize() ([]models.DatasetMeta, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.datasets))
	for name := range w.datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	var metas []models.DatasetMeta
	for _, name := range names {
		ds := w.datasets[name]
		if err := ds.rotate(); err != nil {
			return nil, err
		}
		meta, err := ds.finalize(w.rotateBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to finalize dataset %s: %w", name, err)
		}
		metas = append(metas, meta)
		if w.logger != nil {
			w.logger.Debug().
				Str("dataset", name).
				Int64("records", meta.Records).
				Int("parts", len(meta.Parts)).
				Msg("Dataset finalized")
		}
	}
	return metas, nil
}

// finalize re-sorts the dataset's records into deterministic order and
// rewrites the parts from scratch, so part contents and hashes depend
// only on the record set and the rotation threshold
func (d *datasetWriter) finalize(rotateBytes int64) (models.DatasetMeta, error) {
	lines, err := d.readAllLines()
	if err != nil {
		return models.DatasetMeta{}, err
	}

	type keyed struct {
		key  string
		line []byte
	}
	keyedLines := make([]keyed, len(lines))
	for i, line := range lines {
		keyedLines[i] = keyed{key: sortKeyFor(d.name, line), line: line}
	}
	sort.SliceStable(keyedLines, func(i, j int) bool {
		return keyedLines[i].key < keyedLines[j].key
	})

	// Drop the streamed parts; they are replaced by the sorted rewrite.
	for _, part := range d.parts {
		if err := os.Remove(filepath.Join(d.dir, filepath.Base(part.File))); err != nil {
			return models.DatasetMeta{}, fmt.Errorf("failed to remove part: %w", err)
		}
	}
	d.parts = nil
	d.partSeq = 0

	var (
		buf             bytes.Buffer
		bufRecords      int64
		compressedTotal int64
	)
	flush := func() error {
		if bufRecords == 0 {
			return nil
		}
		compressed := compressBytes(buf.Bytes())
		name := d.partFileName(d.partSeq)
		if err := os.WriteFile(filepath.Join(d.dir, name), compressed, 0644); err != nil {
			return fmt.Errorf("failed to write sorted part: %w", err)
		}
		sum := sha256.Sum256(compressed)
		d.parts = append(d.parts, models.PartMeta{
			File:            d.relDir + "/" + name,
			Seq:             d.partSeq,
			Records:         bufRecords,
			CompressedBytes: int64(len(compressed)),
			SHA256:          hex.EncodeToString(sum[:]),
		})
		compressedTotal += int64(len(compressed))
		d.partSeq++
		buf.Reset()
		bufRecords = 0
		return nil
	}

	for _, kl := range keyedLines {
		buf.Write(kl.line)
		buf.WriteByte('\n')
		bufRecords++
		if int64(buf.Len()) >= rotateBytes {
			if err := flush(); err != nil {
				return models.DatasetMeta{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return models.DatasetMeta{}, err
	}

	return models.DatasetMeta{
		Name:            d.name,
		Version:         models.DatasetVersion,
		Records:         int64(len(keyedLines)),
		CompressedBytes: compressedTotal,
		Parts:           d.parts,
		Hash:            DatasetHash(d.parts),
		SchemaURI:       d.schemaURI,
	}, nil
}

// readAllLines decompresses every closed part, in sequence order, and
// returns the full record set
func (d *datasetWriter) readAllLines() ([][]byte, error) {
	var lines [][]byte
	for _, part := range d.parts {
		raw, err := decompressFile(filepath.Join(d.dir, filepath.Base(part.File)))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress part %s: %w", part.File, err)
		}
		lines = append(lines, splitLines(raw)...)
	}
	return lines, nil
}

// splitLines splits newline-delimited content into complete lines,
// dropping a trailing fragment without a newline
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		lines = append(lines, line)
		data = data[idx+1:]
	}
	return lines
}

// DatasetHash computes the dataset-level hash: SHA-256 over the
// lexicographically sorted concatenation of per-part hashes
func DatasetHash(parts []models.PartMeta) string {
	hashes := make([]string, 0, len(parts))
	for _, p := range parts {
		hashes = append(hashes, p.SHA256)
	}
	sort.Strings(hashes)

	h := sha256.New()
	h.Write([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(h.Sum(nil))
}

// AuditHash computes the archive-level audit hash: SHA-256 over the
// lexicographically sorted concatenation of dataset-level hashes
func AuditHash(datasets []models.DatasetMeta) string {
	hashes := make([]string, 0, len(datasets))
	for _, d := range datasets {
		hashes = append(hashes, d.Hash)
	}
	sort.Strings(hashes)

	h := sha256.New()
	h.Write([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(h.Sum(nil))
}
