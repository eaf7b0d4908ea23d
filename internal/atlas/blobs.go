package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// BlobStore is a content-addressed store for large immutable bytes:
// page bodies, screenshots, captured subresources. Blobs live at
// blobs/sha256/<ab>/<cd>/<hash>.zst and identical content is written
// once.
type BlobStore struct {
	root string // <staging>/blobs

	mu         sync.Mutex
	hashes     map[string]struct{}
	totalBytes int64
	deduped    int64
}

// NewBlobStore opens (or creates) the blob store under a staging
// directory. Existing blobs from a prior run are indexed so resume
// keeps deduplication and the Merkle root intact.
func NewBlobStore(stagingDir string) (*BlobStore, error) {
	root := filepath.Join(stagingDir, "blobs")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	b := &BlobStore{
		root:   root,
		hashes: make(map[string]struct{}),
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".zst") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hash := strings.TrimSuffix(filepath.Base(path), ".zst")
		b.hashes[hash] = struct{}{}
		b.totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index existing blobs: %w", err)
	}
	return b, nil
}

// Put stores one blob and returns its archive-relative reference. The
// write is atomic; concurrent Puts of identical content write once.
func (b *BlobStore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	ref := fmt.Sprintf("blobs/sha256/%s/%s/%s.zst", hash[:2], hash[2:4], hash)

	b.mu.Lock()
	if _, exists := b.hashes[hash]; exists {
		b.deduped++
		b.mu.Unlock()
		return ref, nil
	}
	b.hashes[hash] = struct{}{}
	b.mu.Unlock()

	compressed := compressBytes(data)

	dir := filepath.Join(b.root, "sha256", hash[:2], hash[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create blob shard: %w", err)
	}
	final := filepath.Join(dir, hash+".zst")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	b.mu.Lock()
	b.totalBytes += int64(len(compressed))
	b.mu.Unlock()
	return ref, nil
}

// Stats summarizes the store. MerkleRoot is a SHA-256 over the
// lexicographically sorted blob hashes, so it is insensitive to write
// order.
func (b *BlobStore) Stats() *models.BlobStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.hashes) == 0 {
		return &models.BlobStats{}
	}

	sorted := make([]string, 0, len(b.hashes))
	for h := range b.hashes {
		sorted = append(sorted, h)
	}
	sort.Strings(sorted)

	root := sha256.New()
	for _, h := range sorted {
		root.Write([]byte(h))
	}

	return &models.BlobStats{
		Count:      int64(len(b.hashes)),
		TotalBytes: b.totalBytes,
		Deduped:    b.deduped,
		MerkleRoot: hex.EncodeToString(root.Sum(nil)),
	}
}
