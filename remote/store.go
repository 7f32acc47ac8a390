// Package remote provides the file store the feed is published on.
package remote

import (
	"context"
	"fmt"
	"time"
)

// Entry is one remote directory entry. Name is relative to the directory
// that was listed or globbed.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Store lists and downloads feed files. All calls block until done.
type Store interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Glob(ctx context.Context, dir, pattern string) ([]Entry, error)
	Download(ctx context.Context, remotePath, localPath string) error
	Close() error
}

// TransportError wraps any failure talking to the store.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
