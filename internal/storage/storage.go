package storage

import (
	"context"
	"fmt"
	"io"
)

// ProgressFunc receives running byte counts while an object is written.
// total is -1 when the size is unknown.
type ProgressFunc func(written, total int64)

// Store is the durable object-storage contract consumed by the pipeline.
// Keys are slash-separated paths; every job writes under its own prefix.
type Store interface {
	// Put writes an object and returns its public URL. Partial writes must
	// never be visible to readers. progress may be nil.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error)

	// Get reads an object in full.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteTree removes every object under a prefix. Idempotent.
	DeleteTree(ctx context.Context, prefix string) error

	// List returns the keys of every object under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Error wraps any storage backend failure so callers can classify it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// progressReader counts bytes as they pass through and reports them.
type progressReader struct {
	r        io.Reader
	total    int64
	written  int64
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.written += int64(n)
		pr.progress(pr.written, pr.total)
	}
	return n, err
}
