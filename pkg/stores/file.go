package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileExtension is appended to every entry file name.
const FileExtension = ".cache"

// FileStore keeps one file per entry, named <id>.cache, in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+FileExtension)
}

// Put writes data to a temporary file and renames it over the entry file, so
// readers never observe a partial write.
func (s *FileStore) Put(_ context.Context, id string, data []byte) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid entry id %q", id)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	if err := os.Rename(tmpName, s.path(id)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Fetch reads the entry file for id.
func (s *FileStore) Fetch(_ context.Context, id string) ([]byte, bool, error) {
	//nolint:gosec // path is built from a hex id inside the store directory
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, true, nil
}

// Delete removes the entry file for id. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteAll removes every entry file and returns how many were removed.
func (s *FileStore) DeleteAll(ctx context.Context) (int, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// IDs lists the ids of all entry files in sorted order.
func (s *FileStore) IDs(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+FileExtension))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), FileExtension))
	}
	sort.Strings(ids)
	return ids, nil
}

// Size sums the sizes of all entry files.
func (s *FileStore) Size(ctx context.Context) (int64, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, id := range ids {
		info, err := os.Stat(s.path(id))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("failed to stat cache entry: %w", err)
		}
		total += info.Size()
	}
	return total, nil
}

// Location returns the store directory.
func (s *FileStore) Location() string {
	return s.dir
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
