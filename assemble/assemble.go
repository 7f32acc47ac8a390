package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/consolidate"
	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/logger"
	"github.com/crishoj/odf-fetch/merge"
	"github.com/crishoj/odf-fetch/remote"
	"github.com/crishoj/odf-fetch/scanner"
	"github.com/crishoj/odf-fetch/synth"
	"github.com/crishoj/odf-fetch/utils"
)

const (
	// UpdatesDir holds transient update downloads under the target.
	UpdatesDir = ".updates"
	// LatestFileName is the fixed name of the latest gold medals digest.
	LatestFileName = "DT_MEDALLISTS_LATEST.xml"
	mergedSuffix   = "_MERGED"
)

// Stage names used in FatalError and artifacts.
const (
	StageUpdates     = "updates"
	StageConsolidate = "consolidate"
	StageSynthesize  = "synthesize"
	StageDigest      = "digest"
)

// Materializer fetches a remote entry through the cache gate.
type Materializer interface {
	Materialize(ctx context.Context, state *scanner.State, remotePath, localPath string, entry remote.Entry) (bool, error)
}

// Artifact is a file written by the pipeline.
type Artifact struct {
	Stage      string `json:"stage"`
	Discipline string `json:"discipline,omitempty"`
	Type       string `json:"type,omitempty"`
	Path       string `json:"path"`
}

// Result collects what the pipeline did.
type Result struct {
	Merges    map[string]merge.Stats `json:"merges"`
	Artifacts []Artifact             `json:"artifacts"`
	Failures  []*FatalError          `json:"-"`
}

func (r *Result) fail(discipline, stage string, err error) {
	fe := &FatalError{Discipline: discipline, Stage: stage, Err: err}
	logger.Errorf("%v", fe)
	r.Failures = append(r.Failures, fe)
}

// Assembler turns the files gathered by a scan into merged, consolidated
// and synthesized documents.
type Assembler struct {
	cfg     *config.Config
	fetcher Materializer
	now     func() time.Time
}

func New(cfg *config.Config, fetcher Materializer) *Assembler {
	return &Assembler{cfg: cfg, fetcher: fetcher, now: time.Now}
}

// Run executes every stage. Failures are recorded per unit in the result;
// only cancellation is returned.
func (a *Assembler) Run(ctx context.Context, state *scanner.State) (*Result, error) {
	res := &Result{Merges: make(map[string]merge.Stats)}

	if !a.cfg.SkipUpdate {
		for _, d := range state.FoundDisciplines() {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := a.applyUpdates(ctx, state, d, res); err != nil {
				res.fail(d, StageUpdates, err)
			}
		}
	}

	day := a.consolidateType(state, feed.TypeMedallistsDay, res)
	discipline := a.consolidateType(state, feed.TypeMedallistsDiscipline, res)

	if discipline != nil && a.cfg.LatestCount > 0 {
		if err := a.digest(discipline, state, res); err != nil {
			res.fail("", StageDigest, err)
		}
	}
	if err := a.synthesize(day, discipline, state, res); err != nil {
		res.fail("", StageSynthesize, err)
	}
	return res, ctx.Err()
}

func (a *Assembler) applyUpdates(ctx context.Context, state *scanner.State, discipline string, res *Result) error {
	base, ok := state.Latest(discipline, feed.TypeParticipants)
	if !ok {
		return nil
	}
	candidates := state.UpdatesAfter(discipline, base.Timestamp)
	if len(candidates) == 0 {
		return nil
	}
	logger.Infof("Merging %d updates into %s", len(candidates), filepath.Base(base.LocalPath))

	dir := filepath.Join(a.cfg.Target, UpdatesDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create updates directory")
	}
	var transient []string
	defer func() {
		if a.cfg.KeepUpdates {
			return
		}
		for _, p := range transient {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.Warnf("Could not remove %s: %v", p, err)
			}
		}
	}()

	updates := make([]merge.Update, 0, len(candidates))
	for _, c := range candidates {
		local, err := utils.LocalPath(dir, c.Entry.Name)
		if err != nil {
			return err
		}
		if _, err := a.fetcher.Materialize(ctx, state, c.RemotePath, local, c.Entry); err != nil {
			return errors.Wrapf(err, "fetch update %s", c.RemotePath)
		}
		transient = append(transient, local)
		doc, err := LoadDocument(local)
		if err != nil {
			return err
		}
		updates = append(updates, merge.Update{Name: c.Name.Name, Timestamp: c.Name.Timestamp, Doc: doc})
	}

	doc, err := LoadDocument(base.LocalPath)
	if err != nil {
		return err
	}
	stats, err := merge.MergeUpdates(doc, updates, merge.ParticipantRecords)
	if err != nil {
		return err
	}
	out := strings.TrimSuffix(base.LocalPath, filepath.Ext(base.LocalPath)) + mergedSuffix + ".xml"
	if err := SaveDocument(doc, out); err != nil {
		return err
	}
	res.Merges[discipline] = stats
	res.Artifacts = append(res.Artifacts, Artifact{Stage: StageUpdates, Discipline: discipline, Type: feed.TypeParticipants, Path: out})
	logger.Infof("    [%s] %s => %s", discipline, stats, out)
	return nil
}

// consolidateType combines the newest file of typeCode of every discipline.
// A discipline whose file cannot be loaded is left out. The combined
// document is returned for later stages, or nil.
func (a *Assembler) consolidateType(state *scanner.State, typeCode string, res *Result) *etree.Document {
	latest := state.LatestByDiscipline(typeCode)
	if len(latest) == 0 {
		return nil
	}
	sources := make(map[string]consolidate.Source, len(latest))
	for d, rec := range latest {
		doc, err := LoadDocument(rec.LocalPath)
		if err != nil {
			res.fail(d, StageConsolidate, err)
			continue
		}
		sources[d] = consolidate.Source{Path: rec.LocalPath, Timestamp: rec.Timestamp, Doc: doc}
	}
	if len(sources) == 0 {
		return nil
	}
	combined, err := consolidate.Consolidate(sources)
	if err != nil {
		res.fail("", StageConsolidate, err)
		return nil
	}
	out := filepath.Join(a.cfg.Target, combined.Name)
	if err := SaveDocument(combined.Doc, out); err != nil {
		res.fail("", StageConsolidate, err)
		return combined.Doc
	}
	res.Artifacts = append(res.Artifacts, Artifact{Stage: StageConsolidate, Type: typeCode, Path: out})
	logger.Infof("Combined %s from %d disciplines => %s", typeCode, len(sources), out)
	return combined.Doc
}

func (a *Assembler) digest(historical *etree.Document, state *scanner.State, res *Result) error {
	doc := synth.LatestDigest(historical, state.Index, a.cfg.LatestCount, synth.DefaultShell)
	if doc == nil {
		logger.Infof("No gold medal events for the latest digest")
		return nil
	}
	out := filepath.Join(a.cfg.Target, LatestFileName)
	if err := SaveDocument(doc, out); err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, Artifact{Stage: StageDigest, Type: feed.TypeMedallistsDiscipline, Path: out})
	return nil
}

func (a *Assembler) synthesize(day, historical *etree.Document, state *scanner.State, res *Result) error {
	now := a.now()
	today := a.cfg.TodayStamp(now)
	for _, rec := range state.Found {
		if rec.Type == feed.TypeMedallistsDay && rec.DateStamp == today {
			logger.Debugf("Daily medallists for %s already published", today)
			return nil
		}
	}
	if day == nil && historical == nil {
		return nil
	}
	result := synth.Synthesize(day, historical, state.Index, a.cfg.GoldTarget, today, synth.DefaultShell)
	if result == nil {
		logger.Infof("Nothing to synthesize for %s", today)
		return nil
	}
	out := filepath.Join(a.cfg.Target, SyntheticName(today, now))
	if err := SaveDocument(result.Doc, out); err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, Artifact{Stage: StageSynthesize, Type: feed.TypeMedallistsDay, Path: out})
	logger.Infof("Synthesized %s with %d gold medals (%d backfilled) => %s", feed.TypeMedallistsDay, result.Golds, len(result.Backfilled), out)
	return nil
}

// SyntheticName is the file name of a synthesized daily snapshot. The
// SYNTHETIC marker keeps it apart from every genuine feed name.
func SyntheticName(today string, now time.Time) string {
	return fmt.Sprintf("%s%s0000000_____%s__SYNTHETIC___%s000000.xml",
		today, feed.CombinedCode, feed.TypeMedallistsDay, now.Format(feed.TimestampLayout))
}
