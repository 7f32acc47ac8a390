package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/crishoj/odf-fetch/assemble"
	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/logger"
	"github.com/crishoj/odf-fetch/merge"
	"github.com/crishoj/odf-fetch/scanner"
	"github.com/crishoj/odf-fetch/systeminfo"
	"github.com/crishoj/odf-fetch/version"
)

// SchemaVersion identifies the layout of the JSON run report.
const SchemaVersion = "1"

type Metrics struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Directories       int    `json:"directories"`
	DirectoryFailures int    `json:"directory_failures"`
	Entries           int    `json:"entries"`
	Unclassified      int    `json:"unclassified"`
	Fetched           int    `json:"fetched"`
	Cached            int    `json:"cached"`
	DownloadFailures  int    `json:"download_failures"`
	Disciplines       int    `json:"disciplines"`
	Incomplete        int    `json:"incomplete"`
	Artifacts         int    `json:"artifacts"`
	Failures          int    `json:"failures"`
}

// SetScan copies the scan counters into m.
func (m *Metrics) SetScan(state *scanner.State) {
	m.Directories = state.Stats.Directories
	m.DirectoryFailures = state.Stats.DirectoryFailures
	m.Entries = state.Stats.Entries
	m.Unclassified = state.Stats.Unclassified
	m.Fetched = state.Stats.Fetched
	m.Cached = state.Stats.Cached
	m.DownloadFailures = state.Stats.DownloadFailures
	m.Disciplines = len(state.Tracker.Seen())
	m.Incomplete = len(state.Tracker.Incomplete())
}

// Writer streams the JSON run report and mirrors every record to OTEL when
// an endpoint is configured. Both sinks are optional.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	mu      sync.Mutex
	first   bool
	metrics *Metrics
	cfg     *config.Config
	sysInfo *systeminfo.SystemInfo
	otel    *otelLogger
}

func New(cfg *config.Config, sysInfo *systeminfo.SystemInfo, m *Metrics) (*Writer, error) {
	w := &Writer{first: true, metrics: m, cfg: cfg, sysInfo: sysInfo}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if cfg.ReportFile != "" {
		if err := w.openFile(cfg.ReportFile); err != nil {
			w.otel.Shutdown()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) openFile(name string) error {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)
	if err := w.writeHeader(); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *Writer) writeHeader() error {
	run := map[string]interface{}{
		"version":     version.Version,
		"host":        w.cfg.EffectiveHost(),
		"source_dir":  w.cfg.SourceDir,
		"target":      w.cfg.Target,
		"discipline":  w.cfg.Discipline,
		"wanted":      w.cfg.WantedTypes,
		"skip_update": w.cfg.SkipUpdate,
	}
	if w.sysInfo != nil {
		run["system_info"] = w.sysInfo
	}
	runBytes, err := json.MarshalIndent(run, "  ", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.buf, "{\n  \"schema_version\": %q,\n  \"run\": ", SchemaVersion); err != nil {
		return err
	}
	if _, err := w.buf.Write(runBytes); err != nil {
		return err
	}
	_, err = w.buf.WriteString(",\n  \"found\": [\n")
	return err
}

// WriteFound appends one found record.
func (w *Writer) WriteFound(rec scanner.FoundRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf != nil {
		if !w.first {
			_, _ = w.buf.WriteString(",\n")
		}
		if bytes, err := json.MarshalIndent(rec, "    ", "  "); err == nil {
			_, _ = w.buf.WriteString("    ")
			_, _ = w.buf.Write(bytes)
		}
		w.first = false
		_ = w.buf.Flush()
	}
	w.emitRecordLocked("found", rec)
}

// Close writes the trailing sections, emits the artifacts and metrics and
// closes both sinks.
func (w *Writer) Close(state *scanner.State, res *assemble.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	missing := map[string][]string{}
	var merges map[string]merge.Stats
	var artifacts []assemble.Artifact
	var failures []string
	if state != nil {
		for _, d := range state.Tracker.Incomplete() {
			missing[d] = state.Tracker.Missing(d)
		}
	}
	if res != nil {
		merges = res.Merges
		artifacts = res.Artifacts
		for _, f := range res.Failures {
			failures = append(failures, f.Error())
		}
	}
	for _, a := range artifacts {
		w.emitRecordLocked("artifact", a)
	}
	if w.metrics != nil {
		w.emitRecordLocked("metrics", w.metrics)
	}
	defer w.otel.Shutdown()

	if w.buf == nil {
		return nil
	}
	_, _ = w.buf.WriteString("\n  ]")
	sections := []struct {
		key   string
		value interface{}
	}{
		{"missing", missing},
		{"merges", merges},
		{"artifacts", artifacts},
		{"failures", failures},
		{"metrics", w.metrics},
	}
	for _, s := range sections {
		bytes, err := json.MarshalIndent(s.value, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w.buf, ",\n  %q: ", s.key)
		_, _ = w.buf.Write(bytes)
	}
	_, _ = w.buf.WriteString("\n}\n")
	if err := w.buf.Flush(); err != nil {
		return err
	}
	_ = w.file.Sync()
	return w.file.Close()
}

func (w *Writer) emitRecordLocked(recordType string, payload interface{}) {
	if w.otel == nil {
		return
	}
	w.otel.Emit(recordType, payload)
}
