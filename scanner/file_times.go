package scanner

import (
	"os"
	"time"

	"github.com/djherbis/times"
)

// LocalMeta describes the local copy of a feed file.
type LocalMeta struct {
	Exists    bool
	Size      int64
	CreatedAt time.Time
}

// RemoteMeta describes a feed file as reported by the store.
type RemoteMeta struct {
	Size       int64
	ModifiedAt time.Time
}

// StatLocal reads size and creation time of path. A missing file is not an
// error. Filesystems without birth time fall back to the change time, then
// the modification time.
func StatLocal(path string) (LocalMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LocalMeta{}, nil
		}
		return LocalMeta{}, err
	}
	meta := LocalMeta{Exists: true, Size: info.Size(), CreatedAt: info.ModTime()}
	ts, err := times.Stat(path)
	if err != nil {
		return meta, nil
	}
	switch {
	case ts.HasBirthTime():
		meta.CreatedAt = ts.BirthTime()
	case ts.HasChangeTime():
		meta.CreatedAt = ts.ChangeTime()
	}
	return meta, nil
}

// NeedsFetch reports whether the remote file must be downloaded. Only an
// existing local copy of exactly the remote size, created strictly after
// the remote modification, is trusted.
func NeedsFetch(local LocalMeta, remote RemoteMeta) bool {
	if !local.Exists {
		return true
	}
	if local.Size != remote.Size {
		return true
	}
	return !local.CreatedAt.After(remote.ModifiedAt)
}
