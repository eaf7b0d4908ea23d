package atlas

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

var partFilePattern = regexp.MustCompile(`^(.+)\.v1_part_(\d{3,})\.jsonl\.zst$`)

// ResumeWriter reopens a staging directory at a checkpointed position.
// Closed-part metadata is rebuilt by re-reading the compressed files on
// disk; no hash state is carried in the checkpoint itself. Parts
// written after the snapshot are dropped, and any open JSONL is
// truncated to its last complete line, so the writer continues exactly
// from the snapshot. Re-crawled pages may double-write records; the
// frontier's normalized-URL dedup keeps them logically single.
func ResumeWriter(opts WriterOptions, checkpoints map[string]models.DatasetCheckpoint) (*Writer, error) {
	w, err := NewWriter(opts)
	if err != nil {
		return nil, err
	}

	for name, cp := range checkpoints {
		ds, err := w.dataset(name)
		if err != nil {
			return nil, err
		}
		if err := ds.restore(cp); err != nil {
			return nil, fmt.Errorf("failed to restore dataset %s: %w", name, err)
		}
	}
	return w, nil
}

func (d *datasetWriter) restore(cp models.DatasetCheckpoint) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}

	type diskPart struct {
		name string
		seq  int
	}
	var found []diskPart
	for _, entry := range entries {
		m := partFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		found = append(found, diskPart{name: entry.Name(), seq: seq})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	for _, p := range found {
		path := filepath.Join(d.dir, p.name)
		// Parts rotated after the snapshot belong to work the frontier
		// will redo; drop them.
		if p.seq >= cp.NextPartSeq {
			if err := os.Remove(path); err != nil {
				return err
			}
			continue
		}
		compressed, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		raw, err := decompressBytes(compressed)
		if err != nil {
			return fmt.Errorf("corrupt part %s: %w", p.name, err)
		}
		sum := sha256.Sum256(compressed)
		d.parts = append(d.parts, models.PartMeta{
			File:            d.relDir + "/" + p.name,
			Seq:             p.seq,
			Records:         int64(len(splitLines(raw))),
			CompressedBytes: int64(len(compressed)),
			SHA256:          hex.EncodeToString(sum[:]),
		})
	}

	d.partSeq = cp.NextPartSeq

	closedRecords := int64(0)
	for _, p := range d.parts {
		closedRecords += p.Records
	}

	openRecords, openBytes, err := truncateToLastLine(d.openPartPath())
	if err != nil {
		return err
	}
	if openRecords > 0 {
		file, err := os.OpenFile(d.openPartPath(), os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		d.file = file
		d.bufw = bufio.NewWriter(file)
	}

	d.openRecords = openRecords
	d.openBytes = openBytes
	d.totalRecords = closedRecords + openRecords
	return nil
}

// truncateToLastLine trims a JSONL file to its last complete line and
// returns the surviving line count and byte length. A missing file is
// an empty part.
func truncateToLastLine(path string) (records, size int64, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	keep := len(data)
	if keep > 0 && data[keep-1] != '\n' {
		idx := bytes.LastIndexByte(data, '\n')
		keep = idx + 1 // idx == -1 discards everything
	}

	if keep != len(data) {
		if err := os.Truncate(path, int64(keep)); err != nil {
			return 0, 0, err
		}
	}
	if keep == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, 0, err
		}
		return 0, 0, nil
	}
	return int64(bytes.Count(data[:keep], []byte{'\n'})), int64(keep), nil
}
