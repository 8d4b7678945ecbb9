// Package assets resolves media references to stored bytes. The asset store
// owns media lifecycle; the pipeline only reads captures and writes outputs.
package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lightbooth/boothflow/internal/models"
)

// Store reads and writes media assets.
type Store interface {
	// Open returns a reader over the referenced asset plus its size in bytes.
	Open(ref models.MediaReference) (io.ReadCloser, int64, error)

	// Put stores content under a fresh asset ID and returns its reference.
	Put(displayName string, content io.Reader) (models.MediaReference, error)
}

// DirStore is a filesystem-backed asset store rooted at a directory. Asset
// storage paths are relative to the root.
type DirStore struct {
	root string
}

// NewDirStore creates an asset store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

func (s *DirStore) resolve(ref models.MediaReference) (string, error) {
	path := ref.StoragePath
	if path == "" {
		path = ref.AssetID
	}
	if path == "" {
		return "", fmt.Errorf("media reference has neither storage path nor asset id")
	}

	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || strings.Contains(clean, "..") {
		return "", fmt.Errorf("storage path %q escapes asset root", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Open opens the referenced asset for reading.
func (s *DirStore) Open(ref models.MediaReference) (io.ReadCloser, int64, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening asset %s: %w", ref.AssetID, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat asset %s: %w", ref.AssetID, err)
	}
	return f, info.Size(), nil
}

// Put writes content to a new asset file and returns its reference.
func (s *DirStore) Put(displayName string, content io.Reader) (models.MediaReference, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return models.MediaReference{}, fmt.Errorf("creating asset root: %w", err)
	}

	// The file is keyed by the asset ID itself so a reference carrying only
	// the ID resolves back to it. The display name's extension folds into
	// the ID to keep the media type visible on disk.
	assetID := uuid.NewString()
	if ext := filepath.Ext(displayName); ext != "" {
		assetID += ext
	}

	path := filepath.Join(s.root, assetID)
	f, err := os.Create(path)
	if err != nil {
		return models.MediaReference{}, fmt.Errorf("creating asset file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, content); err != nil {
		return models.MediaReference{}, fmt.Errorf("writing asset %s: %w", assetID, err)
	}

	return models.MediaReference{
		AssetID:     assetID,
		StoragePath: assetID,
		DisplayName: displayName,
	}, nil
}

var _ Store = (*DirStore)(nil)
