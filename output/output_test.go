package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crishoj/odf-fetch/assemble"
	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/logger"
	"github.com/crishoj/odf-fetch/merge"
	"github.com/crishoj/odf-fetch/scanner"
	"github.com/crishoj/odf-fetch/systeminfo"
)

func init() {
	logger.Init("error")
}

type report struct {
	SchemaVersion string                 `json:"schema_version"`
	Run           map[string]interface{} `json:"run"`
	Found         []scanner.FoundRecord  `json:"found"`
	Missing       map[string][]string    `json:"missing"`
	Merges        map[string]merge.Stats `json:"merges"`
	Artifacts     []assemble.Artifact    `json:"artifacts"`
	Failures      []string               `json:"failures"`
	Metrics       Metrics                `json:"metrics"`
}

func sampleState() *scanner.State {
	state := scanner.NewState(feed.DefaultWantedTypes)
	state.Tracker.Observe("AL")
	state.Tracker.Observe("SB")
	for _, typ := range feed.DefaultWantedTypes {
		state.Tracker.Found("SB", typ)
		state.Found = append(state.Found, scanner.FoundRecord{Discipline: "SB", Type: typ})
	}
	state.Tracker.Found("AL", feed.TypeParticipants)
	state.Found = append(state.Found, scanner.FoundRecord{Discipline: "AL", Type: feed.TypeParticipants})
	state.Stats.Fetched = 4
	return state
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleState())
	out := buf.String()
	for _, want := range []string{
		"  Found:\n",
		"    [AL] this: [DT_PARTIC]\n",
		"    [SB] these 3: [DT_MEDALLISTS_DAY, DT_MEDALLISTS_DISCIPLINE, DT_PARTIC]\n",
		"  Did not find:\n",
		"    [AL] these 2: [DT_MEDALLISTS_DAY, DT_MEDALLISTS_DISCIPLINE]\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Found all files") {
		t.Fatal("incomplete run must not claim completion")
	}
}

func TestWriteSummaryComplete(t *testing.T) {
	state := scanner.NewState([]string{feed.TypeParticipants})
	state.Tracker.Observe("SB")
	state.Tracker.Found("SB", feed.TypeParticipants)
	var buf bytes.Buffer
	WriteSummary(&buf, state)
	if !strings.Contains(buf.String(), "Found all files") || strings.Contains(buf.String(), "Did not find") {
		t.Fatalf("unexpected summary:\n%s", buf.String())
	}
}

func TestReportLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	cfg := config.Defaults()
	cfg.ReportFile = path
	state := sampleState()
	metrics := &Metrics{StartTime: "start"}

	w, err := New(cfg, &systeminfo.SystemInfo{Hostname: "feedbox", TargetFreeBytes: 42}, metrics)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, rec := range state.Found {
		w.WriteFound(rec)
	}
	metrics.SetScan(state)
	res := &assemble.Result{
		Merges:    map[string]merge.Stats{"AL": {Added: 1, Updated: 2}},
		Artifacts: []assemble.Artifact{{Stage: assemble.StageDigest, Path: "DT_MEDALLISTS_LATEST.xml"}},
		Failures:  []*assemble.FatalError{{Discipline: "AL", Stage: assemble.StageUpdates, Err: errors.New("boom")}},
	}
	if err := w.Close(state, res); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, data)
	}
	if r.SchemaVersion != SchemaVersion || r.Run["target"] != cfg.Target {
		t.Fatalf("unexpected header %+v", r)
	}
	sys, ok := r.Run["system_info"].(map[string]interface{})
	if !ok || sys["hostname"] != "feedbox" || sys["target_free_bytes"] != float64(42) {
		t.Fatalf("unexpected system info %v", r.Run["system_info"])
	}
	if len(r.Found) != 4 || len(r.Missing["AL"]) != 2 {
		t.Fatalf("unexpected found/missing: %d %v", len(r.Found), r.Missing)
	}
	if r.Merges["AL"].Updated != 2 || len(r.Artifacts) != 1 || len(r.Failures) != 1 {
		t.Fatalf("unexpected assemble sections %+v", r)
	}
	if r.Metrics.Fetched != 4 || r.Metrics.Disciplines != 2 || r.Metrics.Incomplete != 1 {
		t.Fatalf("unexpected metrics %+v", r.Metrics)
	}
}

func TestReportWithoutFile(t *testing.T) {
	cfg := config.Defaults()
	w, err := New(cfg, nil, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	w.WriteFound(scanner.FoundRecord{Discipline: "SB"})
	if err := w.Close(nil, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReportEmptyFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	cfg := config.Defaults()
	cfg.ReportFile = path
	w, err := New(cfg, nil, &Metrics{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := w.Close(scanner.NewState(nil), &assemble.Result{}); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, _ := os.ReadFile(path)
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, data)
	}
}
