// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/listenupapp/mediawatch/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Watch     WatchConfig
	Pipeline  PipelineConfig
	Transcode TranscodeConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format     string `env:"LOG_FORMAT" validate:"omitempty,oneof=pretty json"`
	File       string `env:"LOG_FILE"` // Optional rotating log file
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" validate:"gte=0"`
}

// WatchConfig holds event source configuration.
type WatchConfig struct {
	Root string `env:"WATCH_DIR" validate:"required"`
	// IsSMB selects the poll fallback for mounts that do not deliver notifications.
	IsSMB        bool          `env:"IS_SMB"`
	Backend      string        `env:"WATCH_BACKEND" validate:"oneof=auto inotify fsnotify"`
	PollInterval time.Duration `env:"POLL_INTERVAL" validate:"gt=0"`
	SettleDelay  time.Duration `env:"WATCH_SETTLE_DELAY" validate:"gte=0"`
}

// PipelineConfig holds discovery, ledger and scheduling configuration.
type PipelineConfig struct {
	Threads      int    `env:"THREADS" validate:"gt=0"`
	LedgerPath   string `env:"LEDGER_PATH" validate:"required"`
	ScratchDir   string `env:"SCRATCH_DIR" validate:"required"`
	ContainerExt string `env:"CONTAINER_EXT" validate:"required,startswith=."`
	SubtitleExt  string `env:"SUBTITLE_EXT" validate:"required,startswith=.,nefield=ContainerExt"`
	OutputExt    string `env:"OUTPUT_EXT" validate:"required,startswith=.,nefield=ContainerExt"`
	// ClaimTable prevents overlapping passes from running the same item twice.
	ClaimTable    bool          `env:"CLAIM_TABLE"`
	StatsInterval time.Duration `env:"STATS_INTERVAL" validate:"gte=0"` // 0 disables the reporter
}

// TranscodeConfig holds ffmpeg and capability probing configuration.
type TranscodeConfig struct {
	// FFmpegPath overrides auto-detection of ffmpeg location (default: auto-detect)
	FFmpegPath       string        `env:"FFMPEG_PATH"`
	ForceCPU         bool          `env:"FORCE_CPU"`
	ProbePolicy      string        `env:"PROBE_POLICY" validate:"oneof=invoke devices"`
	DevicePreference string        `env:"DEVICE_PREFERENCE" validate:"oneof=primary secondary"`
	VAAPIDevice      string        `env:"VAAPI_DEVICE" validate:"required"`
	SubtitleLanguage string        `env:"SUBTITLE_LANGUAGE" validate:"required"`
	AudioBitrate     string        `env:"AUDIO_BITRATE" validate:"required"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" validate:"gt=0"`
	JobTimeout       time.Duration `env:"JOB_TIMEOUT" validate:"gte=0"` // 0 means no deadline
}

// Default values that are not derived from the host.
const (
	DefaultWatchRoot     = "/mnt/smb"
	DefaultLedgerPath    = "/var/tmp/converted_ledger.txt"
	DefaultScratchDir    = "/tmp/video_convert_work"
	DefaultPollInterval  = 30 * time.Second
	DefaultSettleDelay   = 500 * time.Millisecond
	DefaultStatsInterval = 5 * time.Minute
	DefaultProbeTimeout  = 15 * time.Second
	DefaultVAAPIDevice   = "/dev/dri/renderD128"
)

// flagNames maps every flag registered by RegisterFlags to its usage string.
var flagNames = []struct{ name, usage string }{
	{"env", "Environment (development, staging, production)"},
	{"log-level", "Log level (debug, info, warn, error)"},
	{"log-format", "Log format (pretty, json; default: by environment)"},
	{"log-file", "Rotating log file path (default: console only)"},
	{"log-max-size", "Rotating log file size in MB before rotation"},
	{"log-max-backups", "Rotated log files to keep"},
	{"log-max-age", "Days to keep rotated log files"},
	{"watch-dir", "Root directory to watch (default: /mnt/smb)"},
	{"smb", "Use the poll fallback instead of live notifications"},
	{"watch-backend", "Notification backend (auto, inotify, fsnotify)"},
	{"poll-interval", "Interval between poll passes (default: 30s)"},
	{"settle-delay", "Quiet period before an fsnotify write counts (default: 500ms)"},
	{"threads", "Maximum concurrent jobs across all passes (default: half the CPUs)"},
	{"ledger-path", "Ledger file path"},
	{"scratch-dir", "Scratch directory for working copies"},
	{"container-ext", "Container extension to convert (default: .mkv)"},
	{"subtitle-ext", "Subtitle extension to pair (default: .srt)"},
	{"output-ext", "Output extension (default: .mp4)"},
	{"claim-table", "Exclude items already claimed by another in-flight pass (default: true)"},
	{"stats-interval", "Interval for lifetime stats reports, 0 disables (default: 5m)"},
	{"ffmpeg-path", "Path to ffmpeg binary (default: auto-detect)"},
	{"force-cpu", "Skip hardware probing and encode in software"},
	{"probe-policy", "Capability probe policy (invoke, devices)"},
	{"device-preference", "Device class checked first by the devices policy (primary, secondary)"},
	{"vaapi-device", "VAAPI render node (default: /dev/dri/renderD128)"},
	{"subtitle-language", "Language tag for the muxed subtitle stream (default: eng)"},
	{"audio-bitrate", "AAC bitrate (default: 128k)"},
	{"probe-timeout", "Deadline for each capability probe (default: 15s)"},
	{"job-timeout", "Deadline for each ffmpeg run, 0 disables (default: 0)"},
	{"env-file", "Path to .env file"},
}

// RegisterFlags adds the configuration flags to flags. Every flag is a string so an
// unset flag can be told apart from an explicit zero value.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, f := range flagNames {
		def := ""
		if f.name == "env-file" {
			def = ".env"
		}
		flags.String(f.name, def, f.usage)
	}
}

// DefaultThreads is half the logical CPUs, never below one.
func DefaultThreads() int {
	return max(1, runtime.NumCPU()/2)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// flags may be nil, in which case only the environment and defaults apply.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	flag := func(name string) string {
		return flagValue(flags, name)
	}

	envFile := flag("env-file")
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flag("env"), "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:      strings.ToLower(getConfigValue(flag("log-level"), "LOG_LEVEL", "info")),
			Format:     strings.ToLower(getConfigValue(flag("log-format"), "LOG_FORMAT", "")),
			File:       getConfigValue(flag("log-file"), "LOG_FILE", ""),
			MaxSizeMB:  getIntConfigValue(flag("log-max-size"), "LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntConfigValue(flag("log-max-backups"), "LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntConfigValue(flag("log-max-age"), "LOG_MAX_AGE_DAYS", 28),
		},
		Watch: WatchConfig{
			Root:    getConfigValue(flag("watch-dir"), "WATCH_DIR", DefaultWatchRoot),
			IsSMB:   getBoolConfigValue(flag("smb"), "IS_SMB", false),
			Backend: strings.ToLower(getConfigValue(flag("watch-backend"), "WATCH_BACKEND", "auto")),
		},
		Pipeline: PipelineConfig{
			Threads:      getPositiveIntConfigValue(flag("threads"), "THREADS", DefaultThreads()),
			LedgerPath:   getConfigValue(flag("ledger-path"), "LEDGER_PATH", DefaultLedgerPath),
			ScratchDir:   getConfigValue(flag("scratch-dir"), "SCRATCH_DIR", DefaultScratchDir),
			ContainerExt: strings.ToLower(getConfigValue(flag("container-ext"), "CONTAINER_EXT", ".mkv")),
			SubtitleExt:  strings.ToLower(getConfigValue(flag("subtitle-ext"), "SUBTITLE_EXT", ".srt")),
			OutputExt:    strings.ToLower(getConfigValue(flag("output-ext"), "OUTPUT_EXT", ".mp4")),
			ClaimTable:   getBoolConfigValue(flag("claim-table"), "CLAIM_TABLE", true),
		},
		Transcode: TranscodeConfig{
			FFmpegPath:       getConfigValue(flag("ffmpeg-path"), "FFMPEG_PATH", ""),
			ForceCPU:         getBoolConfigValue(flag("force-cpu"), "FORCE_CPU", false),
			ProbePolicy:      strings.ToLower(getConfigValue(flag("probe-policy"), "PROBE_POLICY", "invoke")),
			DevicePreference: strings.ToLower(getConfigValue(flag("device-preference"), "DEVICE_PREFERENCE", "secondary")),
			VAAPIDevice:      getConfigValue(flag("vaapi-device"), "VAAPI_DEVICE", DefaultVAAPIDevice),
			SubtitleLanguage: getConfigValue(flag("subtitle-language"), "SUBTITLE_LANGUAGE", "eng"),
			AudioBitrate:     getConfigValue(flag("audio-bitrate"), "AUDIO_BITRATE", "128k"),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flagName string
		envKey   string
		def      time.Duration
	}{
		{&cfg.Watch.PollInterval, "poll-interval", "POLL_INTERVAL", DefaultPollInterval},
		{&cfg.Watch.SettleDelay, "settle-delay", "WATCH_SETTLE_DELAY", DefaultSettleDelay},
		{&cfg.Pipeline.StatsInterval, "stats-interval", "STATS_INTERVAL", DefaultStatsInterval},
		{&cfg.Transcode.ProbeTimeout, "probe-timeout", "PROBE_TIMEOUT", DefaultProbeTimeout},
		{&cfg.Transcode.JobTimeout, "job-timeout", "JOB_TIMEOUT", 0},
	}
	for _, d := range durations {
		v, err := getDurationConfigValue(flag(d.flagName), d.envKey, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and within range.
func (c *Config) Validate() error {
	return validation.New().Validate(c)
}

// expandPaths makes every configured filesystem path absolute.
func (c *Config) expandPaths() error {
	paths := []struct {
		name string
		dst  *string
	}{
		{"watch dir", &c.Watch.Root},
		{"ledger path", &c.Pipeline.LedgerPath},
		{"scratch dir", &c.Pipeline.ScratchDir},
		{"log file", &c.Logger.File},
	}
	for _, p := range paths {
		expanded, err := expandPath(*p.dst, "")
		if err != nil {
			return fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dst = expanded
	}

	// A bare binary name is resolved through PATH later, so only expand real paths.
	if strings.ContainsRune(c.Transcode.FFmpegPath, filepath.Separator) || strings.HasPrefix(c.Transcode.FFmpegPath, "~") {
		expanded, err := expandPath(c.Transcode.FFmpegPath, "")
		if err != nil {
			return fmt.Errorf("invalid ffmpeg path: %w", err)
		}
		c.Transcode.FFmpegPath = expanded
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// flagValue returns the flag's value only when it was set on the command line.
func flagValue(flags *pflag.FlagSet, name string) string {
	if flags == nil {
		return ""
	}
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return ""
	}
	return f.Value.String()
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strings.TrimSpace(strValue))
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

// getPositiveIntConfigValue is getIntConfigValue with non-positive values treated as invalid.
func getPositiveIntConfigValue(flagValue, envKey string, defaultValue int) int {
	result := getIntConfigValue(flagValue, envKey, defaultValue)
	if result < 1 {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
// A bare "0" is accepted for disabled intervals.
func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(strValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}
