package diag

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crishoj/odf-fetch/logger"
)

func init() {
	logger.Init("error")
}

type fakeProfileWriter struct {
	content string
}

func (f fakeProfileWriter) WriteTo(w io.Writer, debug int) error {
	_, err := io.WriteString(w, f.content)
	return err
}

func newTestWatchdog(dir string, progress *int64, now time.Time) *Watchdog {
	return NewWatchdog(Options{
		Threshold:  2 * time.Second,
		Dir:        dir,
		ProgressFn: func() int64 { return atomic.LoadInt64(progress) },
		NowFn:      func() time.Time { return now },
		ProfileLookupFn: func(name string) profileWriter {
			return fakeProfileWriter{content: "goroutine 1 [running]"}
		},
	})
}

func TestProbeDumpsOnStall(t *testing.T) {
	now := time.Date(2014, 2, 7, 12, 0, 0, 0, time.UTC)
	progress := int64(42)
	dir := t.TempDir()
	w := newTestWatchdog(dir, &progress, now)
	w.lastProgress = progress
	w.lastProgressAt = now

	w.probe(now.Add(3 * time.Second))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var foundStall, foundStacks bool
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "odf-fetch-stall-") && strings.HasSuffix(name, ".json") {
			foundStall = true
		}
		if strings.HasPrefix(name, "odf-fetch-goroutines-") {
			foundStacks = true
		}
	}
	if !foundStall || !foundStacks {
		t.Fatalf("expected stall event and goroutine dump, got %d entries", len(entries))
	}
	if w.Dumps() != 1 {
		t.Fatalf("expected one dump, got %d", w.Dumps())
	}

	w.probe(now.Add(4 * time.Second))
	if w.Dumps() != 1 {
		t.Fatal("dumps are rate limited to one per threshold")
	}
	w.probe(now.Add(6 * time.Second))
	if w.Dumps() != 2 {
		t.Fatalf("expected a second dump after another threshold, got %d", w.Dumps())
	}
}

func TestProbeResetsOnProgress(t *testing.T) {
	now := time.Date(2014, 2, 7, 12, 0, 0, 0, time.UTC)
	progress := int64(1)
	dir := t.TempDir()
	w := newTestWatchdog(dir, &progress, now)
	w.lastProgress = 1
	w.lastProgressAt = now

	atomic.StoreInt64(&progress, 2)
	w.probe(now.Add(3 * time.Second))
	if w.Dumps() != 0 {
		t.Fatal("progress must not be reported as a stall")
	}
	w.probe(now.Add(4 * time.Second))
	if w.Dumps() != 0 {
		t.Fatal("stall window restarts at the last progress")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(entries))
	}
}

func TestStartDisabled(t *testing.T) {
	w := NewWatchdog(Options{})
	w.Start(context.Background())
	if w.stopCh != nil {
		t.Fatal("watchdog without threshold must not start")
	}
	w.Close()

	var nilWatchdog *Watchdog
	nilWatchdog.Start(context.Background())
	nilWatchdog.Close()
}

func TestStartAndClose(t *testing.T) {
	progress := int64(0)
	w := NewWatchdog(Options{
		Threshold:  time.Hour,
		Dir:        t.TempDir(),
		ProgressFn: func() int64 { return atomic.LoadInt64(&progress) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	if w.stopCh == nil {
		t.Fatal("expected watchdog to run")
	}
	w.Close()
	if w.stopCh != nil {
		t.Fatal("expected watchdog to stop")
	}
}

func TestStartWithFlightRecorder(t *testing.T) {
	progress := int64(7)
	now := time.Date(2014, 2, 7, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	w := NewWatchdog(Options{
		Threshold:      time.Hour,
		Dir:            dir,
		ProgressFn:     func() int64 { return atomic.LoadInt64(&progress) },
		FlightRecorder: true,
		NowFn:          func() time.Time { return now },
	})
	w.Start(context.Background())
	defer w.Close()
	if w.flight == nil {
		t.Skip("flight recorder unavailable")
	}
	if err := w.dump(now, progress, 2*time.Hour); err != nil {
		t.Fatalf("dump: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	var foundFlight bool
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "odf-fetch-flight-") {
			foundFlight = true
		}
	}
	if !foundFlight {
		t.Fatal("expected a flight recorder window next to the stall event")
	}
}
