package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

// DiskStore is a local-filesystem object store rooted at a directory.
// It is the default backend for single-node deployments and tests.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the root directory if needed. baseURL is prepended to
// keys when building public URLs (e.g. "/media").
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	logging.Info("Disk storage root: %s", root)
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// keyPath maps an object key to a filesystem path, rejecting traversal.
func (s *DiskStore) keyPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty object key")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes to a temp file in the target directory and renames it into
// place, so readers never observe a partial object.
func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	target, err := s.keyPath(key)
	if err != nil {
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		metrics.StorageOperations.WithLabelValues("disk", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		metrics.StorageOperations.WithLabelValues("disk", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, newProgressReader(r, size, progress))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		metrics.StorageOperations.WithLabelValues("disk", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		metrics.StorageOperations.WithLabelValues("disk", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("disk", "put", "success").Inc()
	metrics.StorageBytesWritten.WithLabelValues("disk").Add(float64(written))
	logging.Debug("Disk put: %s (%d bytes)", key, written)

	return s.urlFor(key), nil
}

// Get reads an object in full.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}

	target, err := s.keyPath(key)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}

	data, err := os.ReadFile(target)
	if err != nil {
		metrics.StorageOperations.WithLabelValues("disk", "get", "error").Inc()
		return nil, &Error{Op: "get", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("disk", "get", "success").Inc()
	return data, nil
}

// Delete removes an object; a missing object is not an error.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}

	target, err := s.keyPath(key)
	if err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		metrics.StorageOperations.WithLabelValues("disk", "delete", "error").Inc()
		return &Error{Op: "delete", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("disk", "delete", "success").Inc()
	return nil
}

// DeleteTree removes every object under a prefix. Idempotent.
func (s *DiskStore) DeleteTree(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "delete_tree", Key: prefix, Err: err}
	}

	target, err := s.keyPath(prefix)
	if err != nil {
		return &Error{Op: "delete_tree", Key: prefix, Err: err}
	}

	if err := os.RemoveAll(target); err != nil {
		metrics.StorageOperations.WithLabelValues("disk", "delete_tree", "error").Inc()
		return &Error{Op: "delete_tree", Key: prefix, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("disk", "delete_tree", "success").Inc()
	logging.Debug("Disk delete tree: %s", prefix)
	return nil
}

// List returns the keys of every object under a prefix.
func (s *DiskStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "list", Key: prefix, Err: err}
	}

	target, err := s.keyPath(prefix)
	if err != nil {
		return nil, &Error{Op: "list", Key: prefix, Err: err}
	}

	var keys []string
	walkErr := filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		metrics.StorageOperations.WithLabelValues("disk", "list", "error").Inc()
		return nil, &Error{Op: "list", Key: prefix, Err: walkErr}
	}

	metrics.StorageOperations.WithLabelValues("disk", "list", "success").Inc()
	return keys, nil
}

func (s *DiskStore) urlFor(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}
