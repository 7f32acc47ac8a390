package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/version"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TestMode              bool              `json:"test_mode" yaml:"test_mode"`
	Host                  string            `json:"host" yaml:"host"`
	TestHost              string            `json:"test_host" yaml:"test_host"`
	Port                  int               `json:"port" yaml:"port"`
	User                  string            `json:"user" yaml:"user"`
	Password              string            `json:"password" yaml:"password"`
	KnownHosts            string            `json:"known_hosts" yaml:"known_hosts"`
	ConnectTimeout        time.Duration     `json:"connect_timeout" yaml:"connect_timeout"`
	RemoteRoot            string            `json:"remote_root" yaml:"remote_root"`
	SourceDir             string            `json:"source_dir" yaml:"source_dir"`
	Target                string            `json:"target" yaml:"target"`
	Discipline            string            `json:"discipline" yaml:"discipline"`
	SkipUpdate            bool              `json:"skip_update" yaml:"skip_update"`
	KeepUpdates           bool              `json:"keep_updates" yaml:"keep_updates"`
	Grammar               string            `json:"grammar" yaml:"grammar"`
	Pattern               string            `json:"pattern" yaml:"pattern"`
	WantedTypes           []string          `json:"wanted_types" yaml:"wanted_types"`
	ExcludePatterns       []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	GoldTarget            int               `json:"gold_target" yaml:"gold_target"`
	LatestCount           int               `json:"latest_count" yaml:"latest_count"`
	Today                 string            `json:"today" yaml:"today"`
	MaxDownloadsPerSecond int               `json:"max_downloads_per_second" yaml:"max_downloads_per_second"`
	Checksums             []string          `json:"checksums" yaml:"checksums"`
	ReportFile            string            `json:"report_file" yaml:"report_file"`
	LogLevel              string            `json:"log_level" yaml:"log_level"`
	ConfigFile            string            `json:"config_file" yaml:"config_file"`
	StallThreshold        time.Duration     `json:"stall_threshold" yaml:"stall_threshold"`
	DiagDir               string            `json:"diag_dir" yaml:"diag_dir"`
	TraceFlight           bool              `json:"trace_flight" yaml:"trace_flight"`
	OtelEndpoint          string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelHeaders           map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName       string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout           time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	target := "./XML"
	if runtime.GOOS == "windows" {
		target = "C:/XML"
	}
	return &Config{
		Host:            "ftpbif.sochi2014.com",
		TestHost:        "e2e-bif.sochi2014.com",
		Port:            22,
		User:            "ODF.VW",
		ConnectTimeout:  30 * time.Second,
		RemoteRoot:      "/",
		Target:          target,
		Grammar:         feed.DelimitedGrammar.Name,
		Pattern:         "*/*DT_*",
		WantedTypes:     append([]string(nil), feed.DefaultWantedTypes...),
		ExcludePatterns: []string{},
		GoldTarget:      3,
		LatestCount:     5,
		Checksums:       []string{"xxhash"},
		LogLevel:        "info",
		DiagDir:         ".",
		OtelHeaders:     map[string]string{},
		OtelServiceName: "odf-fetch",
		OtelTimeout:     5 * time.Second,
	}
}

func LoadConfig() (*Config, error) {
	cfg := Defaults()

	testMode := flag.Bool("test", cfg.TestMode, "Fetch from the test server.")
	host := flag.String("host", cfg.Host, fmt.Sprintf("SFTP host (default: %s).", cfg.Host))
	testHost := flag.String("test-host", cfg.TestHost, fmt.Sprintf("SFTP host used with --test (default: %s).", cfg.TestHost))
	port := flag.Int("port", cfg.Port, fmt.Sprintf("SFTP port (default: %d).", cfg.Port))
	user := flag.String("user", cfg.User, fmt.Sprintf("SFTP user (default: %s).", cfg.User))
	password := flag.String("password", "", "SFTP password (default: $ODF_PASSWORD).")
	knownHosts := flag.String("known-hosts", "", "known_hosts file used to verify the server key (default: none).")
	connectTimeout := flag.Duration("connect-timeout", cfg.ConnectTimeout, "SFTP connection timeout (default: 30s).")
	remoteRoot := flag.String("remote-root", cfg.RemoteRoot, "Remote directory holding the date directories (default: /).")
	sourceDir := flag.String("source-dir", "", "Read the feed from a local directory instead of SFTP.")
	target := flag.String("target", cfg.Target, fmt.Sprintf("Output directory (default: %s).", cfg.Target))
	discipline := flag.String("discipline", "", "Restrict processing to one discipline code.")
	skipUpdate := flag.Bool("skip-update", cfg.SkipUpdate, "Do not merge participant updates into the base file.")
	keepUpdates := flag.Bool("keep-updates", cfg.KeepUpdates, "Keep transient update downloads after merging.")
	grammar := flag.String("grammar", cfg.Grammar, "Filename grammar: delimited or offset (default: delimited).")
	pattern := flag.String("pattern", cfg.Pattern, fmt.Sprintf("Glob applied inside each date directory (default: %s).", cfg.Pattern))
	wanted := flag.String("wanted", strings.Join(cfg.WantedTypes, ","), "Comma-separated document types to fetch per discipline.")
	excludes := flag.String("exclude", "", "Comma-separated patterns of remote names to ignore (default: none).")
	goldTarget := flag.Int("gold-target", cfg.GoldTarget, fmt.Sprintf("Gold medal events required in a synthesized daily snapshot (default: %d).", cfg.GoldTarget))
	latestCount := flag.Int("latest-count", cfg.LatestCount, fmt.Sprintf("Gold medal events in the latest digest (default: %d).", cfg.LatestCount))
	today := flag.String("today", "", "Override today's date stamp (YYYYMMDD).")
	maxDownloads := flag.Int("max-downloads-per-second", cfg.MaxDownloadsPerSecond, "Maximum downloads per second (default: 0, unlimited).")
	checksums := flag.String("checksums", strings.Join(cfg.Checksums, ","), "Comma-separated checksum algorithms: xxhash, sha256, blake3, tlsh.")
	report := flag.String("report", "", "Write a JSON run report to this file (default: none).")
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := flag.String("config", "", "Path to a JSON or YAML configuration file (default: none).")
	stallThreshold := flag.Duration("stall-threshold", cfg.StallThreshold, "Dump diagnostics when the scan makes no progress for this long (default: 0/off).")
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, "Keep a runtime trace flight recorder and dump it on stalls (default: false).")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP/HTTP logs endpoint (default: none).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name (default: odf-fetch).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("odf-fetch version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	targetSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "test":
			cfg.TestMode = *testMode
		case "host":
			cfg.Host = strings.TrimSpace(*host)
		case "test-host":
			cfg.TestHost = strings.TrimSpace(*testHost)
		case "port":
			cfg.Port = *port
		case "user":
			cfg.User = *user
		case "password":
			cfg.Password = *password
		case "known-hosts":
			cfg.KnownHosts = *knownHosts
		case "connect-timeout":
			cfg.ConnectTimeout = *connectTimeout
		case "remote-root":
			cfg.RemoteRoot = *remoteRoot
		case "source-dir":
			cfg.SourceDir = *sourceDir
		case "target":
			cfg.Target = *target
			targetSet = true
		case "discipline":
			cfg.Discipline = *discipline
		case "skip-update":
			cfg.SkipUpdate = *skipUpdate
		case "keep-updates":
			cfg.KeepUpdates = *keepUpdates
		case "grammar":
			cfg.Grammar = *grammar
		case "pattern":
			cfg.Pattern = *pattern
		case "wanted":
			cfg.WantedTypes = parseCommaSeparated(*wanted)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "gold-target":
			cfg.GoldTarget = *goldTarget
		case "latest-count":
			cfg.LatestCount = *latestCount
		case "today":
			cfg.Today = *today
		case "max-downloads-per-second":
			cfg.MaxDownloadsPerSecond = *maxDownloads
		case "checksums":
			cfg.Checksums = parseCommaSeparated(*checksums)
		case "report":
			cfg.ReportFile = *report
		case "log-level":
			cfg.LogLevel = *logLevel
		case "stall-threshold":
			cfg.StallThreshold = *stallThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		}
	})
	// The original tool took the target directory as a positional argument.
	if !targetSet && flag.NArg() > 0 {
		cfg.Target = flag.Arg(0)
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("ODF_PASSWORD")
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EffectiveHost is the host to connect to, honouring test mode.
func (cfg *Config) EffectiveHost() string {
	if cfg.TestMode && cfg.TestHost != "" {
		return cfg.TestHost
	}
	return cfg.Host
}

// TodayStamp returns the configured date stamp or the current local date.
func (cfg *Config) TodayStamp(now time.Time) string {
	if cfg.Today != "" {
		return cfg.Today
	}
	return now.Format("20060102")
}

func displayHelp() {
	fmt.Println("odf-fetch - incremental ODF feed mirror")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  odf-fetch [options] [target]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  odf-fetch --target C:/XML")
	fmt.Println("  odf-fetch --test --discipline SB --skip-update")
	fmt.Println("  odf-fetch --source-dir ./mirror --today 20140208")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Discipline = strings.ToUpper(strings.TrimSpace(cfg.Discipline))
	cfg.Grammar = strings.ToLower(strings.TrimSpace(cfg.Grammar))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Checksums = normalizeAlgorithms(cfg.Checksums)
	for i, t := range cfg.WantedTypes {
		cfg.WantedTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*/*DT_*"
	}
	if cfg.RemoteRoot == "" {
		cfg.RemoteRoot = "/"
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "."
	}
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.Target) == "" {
		return fmt.Errorf("target directory must be specified")
	}
	if cfg.SourceDir == "" && cfg.EffectiveHost() == "" {
		return fmt.Errorf("either a host or --source-dir must be specified")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Discipline != "" && !isDisciplineCode(cfg.Discipline) {
		return fmt.Errorf("invalid discipline code: %s (expected two letters)", cfg.Discipline)
	}
	if _, err := feed.GrammarByName(cfg.Grammar); err != nil {
		return err
	}
	for _, t := range cfg.WantedTypes {
		if !containsString(feed.KnownTypes, t) {
			return fmt.Errorf("unknown wanted type: %s", t)
		}
		if t == feed.TypeMedalStandings || t == feed.TypeMedallistsEvent {
			return fmt.Errorf("%s is handled for every discipline and cannot be a wanted type", t)
		}
	}
	if cfg.GoldTarget <= 0 {
		return fmt.Errorf("gold-target must be positive")
	}
	if cfg.LatestCount < 0 {
		return fmt.Errorf("latest-count must be zero or positive")
	}
	if cfg.Today != "" {
		if _, err := time.Parse("20060102", cfg.Today); err != nil {
			return fmt.Errorf("invalid today value %q: %v", cfg.Today, err)
		}
	}
	if cfg.MaxDownloadsPerSecond < 0 {
		return fmt.Errorf("max-downloads-per-second must be zero or positive")
	}
	for _, algo := range cfg.Checksums {
		if algo != "xxhash" && algo != "sha256" && algo != "blake3" && algo != "tlsh" {
			return fmt.Errorf("unsupported checksum algorithm: %s", algo)
		}
	}
	if cfg.StallThreshold < 0 {
		return fmt.Errorf("stall-threshold must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func isDisciplineCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
