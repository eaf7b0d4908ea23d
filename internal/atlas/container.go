package atlas

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// The .atls container is a plain zip archive with every entry stored
// uncompressed: all bulk payloads are already Zstandard frames, and the
// container must preserve their bytes verbatim so part hashes stay
// verifiable without unpacking.

// Pack writes the finished staging directory into a single .atls file.
// Leftover working files (checkpoints, uncompressed parts) are skipped.
func Pack(stagingDir, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := outPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if skipInContainer(rel) {
			return nil
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   rel,
			Method: zip.Store,
		})
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(entry, file)
		return err
	})
	if err != nil {
		zw.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to pack archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	return os.Rename(tmp, outPath)
}

func skipInContainer(rel string) bool {
	if rel == "checkpoint.json" || strings.HasSuffix(rel, ".tmp") {
		return true
	}
	// An uncompressed .jsonl can only be a working file; data parts are
	// always .jsonl.zst.
	return strings.HasSuffix(rel, ".jsonl")
}

// Archive is a read handle over a packed .atls file
type Archive struct {
	reader *zip.ReadCloser
	files  map[string]*zip.File
}

// OpenArchive opens a .atls container for reading
func OpenArchive(path string) (*Archive, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	files := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		files[f.Name] = f
	}
	return &Archive{reader: reader, files: files}, nil
}

// ReadFile returns the raw bytes of one entry
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("archive entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Has reports whether an entry exists
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// Names returns every entry name in the container
func (a *Archive) Names() []string {
	out := make([]string, 0, len(a.files))
	for name := range a.files {
		out = append(out, name)
	}
	return out
}

// Close releases the underlying file handle
func (a *Archive) Close() error {
	return a.reader.Close()
}
