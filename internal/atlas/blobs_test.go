package atlas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutAndDedupe(t *testing.T) {
	staging := t.TempDir()
	store, err := NewBlobStore(staging)
	require.NoError(t, err)

	ref1, err := store.Put([]byte("<html>hello</html>"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref1, "blobs/sha256/"))
	assert.True(t, strings.HasSuffix(ref1, ".zst"))

	// Identical content returns the same ref and writes nothing new.
	ref2, err := store.Put([]byte("<html>hello</html>"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	ref3, err := store.Put([]byte("different"))
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref3)

	stats := store.Stats()
	assert.EqualValues(t, 2, stats.Count)
	assert.EqualValues(t, 1, stats.Deduped)
	assert.NotEmpty(t, stats.MerkleRoot)

	// The ref resolves to a real file whose content round-trips.
	data, err := os.ReadFile(filepath.Join(staging, filepath.FromSlash(ref1)))
	require.NoError(t, err)
	raw, err := decompressBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "<html>hello</html>", string(raw))
}

func TestBlobStoreMerkleRootOrderInsensitive(t *testing.T) {
	a, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	b, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = a.Put([]byte("one"))
	require.NoError(t, err)
	_, err = a.Put([]byte("two"))
	require.NoError(t, err)

	_, err = b.Put([]byte("two"))
	require.NoError(t, err)
	_, err = b.Put([]byte("one"))
	require.NoError(t, err)

	assert.Equal(t, a.Stats().MerkleRoot, b.Stats().MerkleRoot)
}

func TestBlobStoreReindexOnReopen(t *testing.T) {
	staging := t.TempDir()
	store, err := NewBlobStore(staging)
	require.NoError(t, err)
	ref, err := store.Put([]byte("persisted"))
	require.NoError(t, err)
	root := store.Stats().MerkleRoot

	reopened, err := NewBlobStore(staging)
	require.NoError(t, err)

	refAgain, err := reopened.Put([]byte("persisted"))
	require.NoError(t, err)
	assert.Equal(t, ref, refAgain)

	stats := reopened.Stats()
	assert.EqualValues(t, 1, stats.Count)
	assert.EqualValues(t, 1, stats.Deduped)
	assert.Equal(t, root, stats.MerkleRoot)
}
