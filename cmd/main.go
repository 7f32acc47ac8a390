package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crishoj/odf-fetch/assemble"
	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/diag"
	"github.com/crishoj/odf-fetch/logger"
	"github.com/crishoj/odf-fetch/output"
	"github.com/crishoj/odf-fetch/remote"
	"github.com/crishoj/odf-fetch/scanner"
	"github.com/crishoj/odf-fetch/systeminfo"
)

// minTargetFree is the free space below which a run warns before mirroring.
const minTargetFree = 100 << 20

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run executes one full pass. Only configuration and connection problems are
// returned; everything else is reported in the summary.
func run(ctx context.Context, cfg *config.Config) error {
	metrics := output.Metrics{StartTime: time.Now().Format(time.RFC3339)}

	logger.Infof("Will save the latest %s for %s to %s", strings.Join(cfg.WantedTypes, ", "), disciplineLabel(cfg), cfg.Target)
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open remote store: %w", err)
	}
	defer store.Close()

	sysInfo := systeminfo.GetSystemInfo(cfg.Target)
	if sysInfo.LowOnSpace(minTargetFree) {
		logger.Warnf("Only %d bytes free on %s", sysInfo.TargetFreeBytes, sysInfo.TargetVolume)
	}

	writer, err := output.New(cfg, sysInfo, &metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize report: %w", err)
	}

	s, err := scanner.New(cfg, store)
	if err != nil {
		return err
	}

	watchdog := diag.NewWatchdog(diag.Options{
		Threshold:      cfg.StallThreshold,
		Dir:            cfg.DiagDir,
		ProgressFn:     s.Progress,
		FlightRecorder: cfg.TraceFlight,
	})
	watchdog.Start(ctx)

	state, scanErr := s.Scan(ctx)
	if scanErr != nil {
		logger.Errorf("Scan stopped: %v", scanErr)
	}
	for _, rec := range state.Records() {
		writer.WriteFound(rec)
	}

	var res *assemble.Result
	if scanErr == nil {
		res, err = assemble.New(cfg, s).Run(ctx, state)
		if err != nil {
			logger.Errorf("Assembly stopped: %v", err)
		}
	}
	watchdog.Close()
	logger.Info("Done")

	output.WriteSummary(os.Stdout, state)

	metrics.SetScan(state)
	if res != nil {
		metrics.Artifacts = len(res.Artifacts)
		metrics.Failures = len(res.Failures)
	}
	metrics.EndTime = time.Now().Format(time.RFC3339)
	if err := writer.Close(state, res); err != nil {
		logger.Errorf("Failed to write report: %v", err)
	}
	return nil
}

func openStore(cfg *config.Config) (remote.Store, error) {
	if cfg.SourceDir != "" {
		logger.Infof("Reading feed from %s ...", cfg.SourceDir)
		return remote.NewDirStore(cfg.SourceDir)
	}
	logger.Infof("Connecting to sftp://%s@%s/ ...", cfg.User, cfg.EffectiveHost())
	return remote.DialSFTP(remote.SFTPOptions{
		Host:       cfg.EffectiveHost(),
		Port:       cfg.Port,
		User:       cfg.User,
		Password:   cfg.Password,
		KnownHosts: cfg.KnownHosts,
		Root:       cfg.RemoteRoot,
		Timeout:    cfg.ConnectTimeout,
	})
}

func disciplineLabel(cfg *config.Config) string {
	if cfg.Discipline == "" {
		return "all disciplines"
	}
	return cfg.Discipline
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	handleSignalEvent(cancelFunc, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")
	cancelFunc()
}
