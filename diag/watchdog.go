package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/crishoj/odf-fetch/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	Threshold       time.Duration
	Dir             string
	ProgressFn      func() int64
	FlightRecorder  bool
	NowFn           func() time.Time
	ProfileLookupFn func(name string) profileWriter
}

// Watchdog watches a progress counter during long blocking transfers. When
// the counter stays unchanged for the threshold it logs a warning and dumps
// the goroutine stacks, at most once per threshold.
type Watchdog struct {
	threshold       time.Duration
	dir             string
	progressFn      func() int64
	useFlight       bool
	flight          *flightRecorder
	nowFn           func() time.Time
	profileLookupFn func(name string) profileWriter

	mu             sync.Mutex
	lastProgressAt time.Time
	lastProgress   int64
	lastDumpAt     time.Time
	dumps          int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWatchdog(opts Options) *Watchdog {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	profileLookup := opts.ProfileLookupFn
	if profileLookup == nil {
		profileLookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &Watchdog{
		threshold:       opts.Threshold,
		dir:             dir,
		progressFn:      opts.ProgressFn,
		useFlight:       opts.FlightRecorder,
		nowFn:           nowFn,
		profileLookupFn: profileLookup,
	}
}

// Start launches the polling goroutine. It is a no-op when the watchdog is
// disabled or already running.
func (w *Watchdog) Start(ctx context.Context) {
	if w == nil || w.threshold <= 0 || w.progressFn == nil || w.stopCh != nil {
		return
	}

	w.mu.Lock()
	w.lastProgress = w.progressFn()
	w.lastProgressAt = w.nowFn()
	w.lastDumpAt = time.Time{}
	w.mu.Unlock()

	if w.useFlight {
		flight, err := startFlightRecorder(2 * w.threshold)
		if err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			w.flight = flight
		}
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.threshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(w.doneCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.probe(w.nowFn())
			}
		}
	}()
}

func (w *Watchdog) Close() {
	if w == nil || w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.stopCh = nil
	w.doneCh = nil
	w.flight.stop()
	w.flight = nil
}

// Dumps is the number of stalls reported so far.
func (w *Watchdog) Dumps() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dumps
}

func (w *Watchdog) probe(now time.Time) {
	if w == nil || w.progressFn == nil || w.threshold <= 0 {
		return
	}
	progress := w.progressFn()

	w.mu.Lock()
	if progress != w.lastProgress || w.lastProgressAt.IsZero() {
		w.lastProgress = progress
		w.lastProgressAt = now
		w.mu.Unlock()
		return
	}
	stalledFor := now.Sub(w.lastProgressAt)
	stalled := stalledFor >= w.threshold &&
		(w.lastDumpAt.IsZero() || now.Sub(w.lastDumpAt) >= w.threshold)
	if stalled {
		w.lastDumpAt = now
		w.dumps++
	}
	w.mu.Unlock()

	if !stalled {
		return
	}
	logger.Warnf("No progress for %s after %d entries; writing diagnostics to %s", stalledFor.Round(time.Second), progress, w.dir)
	if err := w.dump(now, progress, stalledFor); err != nil {
		logger.Warnf("Diagnostics dump failed: %v", err)
	}
}

func (w *Watchdog) dump(now time.Time, progress int64, stalledFor time.Duration) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	event := map[string]interface{}{
		"event":          "stalled",
		"timestamp":      now.UTC().Format(time.RFC3339Nano),
		"progress_count": progress,
		"threshold_ms":   w.threshold.Milliseconds(),
		"stalled_for_ms": stalledFor.Milliseconds(),
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, fmt.Sprintf("odf-fetch-stall-%s.json", ts)), b, 0600); err != nil {
		return err
	}
	if err := w.flight.writeTo(filepath.Join(w.dir, fmt.Sprintf("odf-fetch-flight-%s.out", ts))); err != nil {
		logger.Warnf("Flight recorder dump failed: %v", err)
	}

	profile := w.profileLookupFn("goroutine")
	if profile == nil {
		return fmt.Errorf("pprof profile %q unavailable", "goroutine")
	}
	f, err := os.OpenFile(filepath.Join(w.dir, fmt.Sprintf("odf-fetch-goroutines-%s.txt", ts)), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return profile.WriteTo(f, 2)
}
