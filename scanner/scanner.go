package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/hasher"
	"github.com/crishoj/odf-fetch/logger"
	"github.com/crishoj/odf-fetch/remote"
	"github.com/crishoj/odf-fetch/utils"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// StandingsFileName is the fixed local name of the medal standings file.
const StandingsFileName = feed.TypeMedalStandings + ".xml"

type classifiedEntry struct {
	entry remote.Entry
	name  feed.ParsedName
}

// Scanner walks the remote feed and materializes the files each discipline
// still wants.
type Scanner struct {
	cfg        *config.Config
	store      remote.Store
	classifier *feed.Classifier
	filter     *utils.NameFilter
	limiter    *rate.Limiter
	progress   atomic.Int64
}

func New(cfg *config.Config, store remote.Store) (*Scanner, error) {
	grammar, err := feed.GrammarByName(cfg.Grammar)
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:        cfg,
		store:      store,
		classifier: feed.NewClassifier(grammar, feed.KnownTypes),
		filter:     utils.NewNameFilter(cfg.ExcludePatterns),
	}
	if cfg.MaxDownloadsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxDownloadsPerSecond), 1)
	}
	logger.Debugf("Classifying names with the %s grammar", s.classifier.Grammar().Name)
	return s, nil
}

// Progress is the number of entries routed so far.
func (s *Scanner) Progress() int64 {
	return s.progress.Load()
}

// Scan walks every date directory newest-first. Only a failure to list the
// root is returned; failures inside a date directory are logged and the
// directory is treated as empty.
func (s *Scanner) Scan(ctx context.Context) (*State, error) {
	state := NewState(s.cfg.WantedTypes)
	if err := os.MkdirAll(s.cfg.Target, 0755); err != nil {
		return state, fmt.Errorf("create target directory: %w", err)
	}

	dirs, err := dateDirectories(ctx, s.store, ".")
	if err != nil {
		return state, err
	}
	logger.Infof("Found %d date directories", len(dirs))

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		s.ScanDirectory(ctx, state, dir)
	}
	return state, nil
}

// ScanDirectory processes one date directory against state.
func (s *Scanner) ScanDirectory(ctx context.Context, state *State, dir string) {
	logger.Infof("Checking %s ...", dir)
	state.Stats.Directories++

	entries, err := s.store.Glob(ctx, dir, s.cfg.Pattern)
	if err != nil {
		state.Stats.DirectoryFailures++
		logger.Warnf("Skipping %s: %v", dir, err)
		return
	}

	classified := make([]classifiedEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir || !s.filter.Allows(e.Name) {
			continue
		}
		name, err := s.classifier.Classify(e.Name)
		if err != nil {
			state.Stats.Unclassified++
			logger.Warnf("Skipping entry in %s: %v", dir, err)
			continue
		}
		classified = append(classified, classifiedEntry{entry: e, name: name})
	}
	sort.SliceStable(classified, func(i, j int) bool {
		a, b := classified[i].name, classified[j].name
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Sequence < b.Sequence
	})

	bar := newDirectoryBar(dir, len(classified))
	defer bar.Finish()

	// Ascending by timestamp, walked in reverse: newest file first.
	for i := len(classified) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		state.Stats.Entries++
		s.route(ctx, state, dir, classified[i])
		s.progress.Add(1)
		_ = bar.Add(1)
	}
}

func (s *Scanner) route(ctx context.Context, state *State, dir string, ce classifiedEntry) {
	name := ce.name
	discipline := name.DisciplineCode
	if s.cfg.Discipline != "" && discipline != s.cfg.Discipline {
		return
	}
	state.Tracker.Observe(discipline)
	remotePath := path.Join(dir, ce.entry.Name)

	switch name.TypeCode {
	case feed.TypeMedallistsEvent:
		if state.Index.Observe(name.EventCode(), name.Timestamp) {
			logger.Debugf("Indexed event %s at %s", name.EventCode(), name.Timestamp)
		}
		return
	case feed.TypeMedalStandings:
		if state.Standings != nil {
			return
		}
		local := filepath.Join(s.cfg.Target, StandingsFileName)
		fetched, err := s.materialize(ctx, state, remotePath, local, ce.entry)
		if err != nil {
			fileFields(discipline, name.TypeCode, remotePath).Warnf("Failed to fetch medal standings: %v", err)
			return
		}
		state.Standings = s.foundRecord(ce, remotePath, local, fetched)
		logger.Infof("    Saved medal standings (%s) => %s", formatTimestamp(name), local)
		return
	case feed.TypeParticipantUpdate:
		if state.Tracker.Wants(discipline, feed.TypeParticipants) {
			state.Updates[discipline] = append(state.Updates[discipline], UpdateCandidate{
				RemotePath: remotePath,
				Entry:      ce.entry,
				Name:       name,
			})
		}
	}

	if !state.Tracker.Wants(discipline, name.TypeCode) {
		return
	}
	local, err := utils.LocalPath(s.cfg.Target, ce.entry.Name)
	if err != nil {
		fileFields(discipline, name.TypeCode, remotePath).Warnf("Refusing entry: %v", err)
		return
	}
	fetched, err := s.materialize(ctx, state, remotePath, local, ce.entry)
	if err != nil {
		fileFields(discipline, name.TypeCode, remotePath).Warnf("Failed to fetch: %v", err)
		return
	}
	state.Tracker.Found(discipline, name.TypeCode)
	state.Found = append(state.Found, *s.foundRecord(ce, remotePath, local, fetched))
	found := len(state.FoundFor(discipline))
	logger.Infof("    [%s %d/%d] Found %s \t(%s)", discipline, found, len(state.Tracker.Wanted()), name.TypeCode, formatTimestamp(name))
}

func (s *Scanner) foundRecord(ce classifiedEntry, remotePath, local string, fetched bool) *FoundRecord {
	return &FoundRecord{
		Discipline: ce.name.DisciplineCode,
		Type:       ce.name.TypeCode,
		LocalPath:  local,
		RemotePath: remotePath,
		DateStamp:  ce.name.DateStamp,
		Timestamp:  ce.name.Timestamp,
		Size:       ce.entry.Size,
		Fetched:    fetched,
		Checksums:  hasher.ComputeChecksums(local, s.cfg.Checksums),
	}
}

func fileFields(discipline, typeCode, path string) *logrus.Entry {
	return logger.WithFields(map[string]interface{}{
		"discipline": discipline,
		"type":       typeCode,
		"path":       path,
	})
}

// Materialize downloads remotePath to localPath unless the cache gate
// trusts the local copy. It reports whether a transfer happened.
func (s *Scanner) Materialize(ctx context.Context, state *State, remotePath, localPath string, entry remote.Entry) (bool, error) {
	return s.materialize(ctx, state, remotePath, localPath, entry)
}

func (s *Scanner) materialize(ctx context.Context, state *State, remotePath, localPath string, entry remote.Entry) (bool, error) {
	local, err := StatLocal(localPath)
	if err != nil {
		return false, err
	}
	if !NeedsFetch(local, RemoteMeta{Size: entry.Size, ModifiedAt: entry.ModTime}) {
		state.Stats.Cached++
		logger.WithFields(map[string]interface{}{"path": localPath}).Debug("Up to date")
		return false, nil
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	if err := s.store.Download(ctx, remotePath, localPath); err != nil {
		state.Stats.DownloadFailures++
		return false, err
	}
	state.Stats.Fetched++
	return true, nil
}

func formatTimestamp(name feed.ParsedName) string {
	t, err := name.Time()
	if err != nil {
		return name.Timestamp
	}
	return t.Format(time.ANSIC)
}

func newDirectoryBar(dir string, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("  %s", dir)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
	)
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("ODF_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
