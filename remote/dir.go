package remote

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// DirStore serves a feed mirrored into a local directory tree with the same
// layout as the remote server.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &TransportError{Op: "open", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &TransportError{Op: "open", Path: root, Err: os.ErrInvalid}
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *DirStore) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.abs(dir))
	if err != nil {
		return nil, &TransportError{Op: "list", Path: dir, Err: err}
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		info, err := d.Info()
		if err != nil {
			return nil, &TransportError{Op: "stat", Path: d.Name(), Err: err}
		}
		entries = append(entries, entryFromInfo(d.Name(), info))
	}
	return entries, nil
}

func (s *DirStore) Glob(ctx context.Context, dir, pattern string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := s.abs(dir)
	matches, err := filepath.Glob(filepath.Join(base, filepath.FromSlash(pattern)))
	if err != nil {
		return nil, &TransportError{Op: "glob", Path: dir, Err: err}
	}
	if _, err := os.Stat(base); err != nil {
		return nil, &TransportError{Op: "glob", Path: dir, Err: err}
	}
	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, &TransportError{Op: "stat", Path: match, Err: err}
		}
		rel, err := filepath.Rel(base, match)
		if err != nil {
			rel = filepath.Base(match)
		}
		entries = append(entries, entryFromInfo(strings.ReplaceAll(rel, string(filepath.Separator), "/"), info))
	}
	return entries, nil
}

func (s *DirStore) Download(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(s.abs(remotePath))
	if err != nil {
		return &TransportError{Op: "open", Path: remotePath, Err: err}
	}
	defer src.Close()
	if err := writeLocal(localPath, src); err != nil {
		return &TransportError{Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

func (s *DirStore) Close() error {
	return nil
}
