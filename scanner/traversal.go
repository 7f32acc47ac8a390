package scanner

import (
	"context"
	"regexp"
	"sort"

	"github.com/crishoj/odf-fetch/remote"
)

var dateDirPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dateDirectories lists the date-partitioned directories under root,
// newest first. Hidden entries and anything not named YYYY-MM-DD are
// ignored.
func dateDirectories(ctx context.Context, store remote.Store, root string) ([]string, error) {
	entries, err := store.List(ctx, root)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if !dateDirPattern.MatchString(e.Name) {
			continue
		}
		dirs = append(dirs, e.Name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}
