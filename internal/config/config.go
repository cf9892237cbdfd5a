package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	DataDir           string `toml:"data_dir"`
	DatasetPath       string `toml:"dataset_path"`
	OverridesPath     string `toml:"overrides_path"`
	VersionImageCache string `toml:"version_image_cache"`
	HistoryDB         string `toml:"history_db"`
	LogDir            string `toml:"log_dir"`
}

// BGG contains configuration for the BoardGameGeek XML API.
type BGG struct {
	// Hosts are tried in order for every batch; later entries are failover targets.
	Hosts                []string `toml:"hosts"`
	APIToken             string   `toml:"api_token"`
	UserAgent            string   `toml:"user_agent"`
	RequestTimeout       int      `toml:"request_timeout"` // seconds
	FetchComments        bool     `toml:"fetch_comments"`
	CommentsPageSize     int      `toml:"comments_page_size"`
	CommentsTop          int      `toml:"comments_top"`
	ResolveVersionImages bool     `toml:"resolve_version_images"`
}

// Fetch contains batching and pacing configuration.
type Fetch struct {
	BatchSize        int `toml:"batch_size"`
	PacingIntervalMS int `toml:"pacing_interval_ms"`
	PacingJitterMS   int `toml:"pacing_jitter_ms"`
}

// Retry contains the backoff and failover parameters applied per host.
type Retry struct {
	MaxRetries     int     `toml:"max_retries"`
	BaseDelayMS    int     `toml:"base_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	QueuedDelayMS  int     `toml:"queued_delay_ms"`
	MaxQueuedPolls int     `toml:"max_queued_polls"`
	FixedDelayMS   int     `toml:"fixed_delay_ms"`
	JitterMS       int     `toml:"jitter_ms"`
}

// Guard contains the thresholds that protect the published dataset.
type Guard struct {
	MinYield       int  `toml:"min_yield"`
	BackupPrevious bool `toml:"backup_previous"`
}

// Merge contains fan-out merge configuration.
type Merge struct {
	// OverrideFields limits which override columns replace upstream values.
	// Empty means every known field.
	OverrideFields []string `toml:"override_fields"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for gamecatalog.
//
// Configuration sections by subsystem:
//   - Paths: data directory, dataset artifact, inputs, caches, logs
//   - BGG: upstream hosts, credentials, optional comment and version image lookups
//   - Fetch: batch size and inter-batch pacing
//   - Retry: backoff and failover policy parameters
//   - Guard: minimum yield before a run may replace the published dataset
//   - Merge: override field selection
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	BGG     BGG     `toml:"bgg"`
	Fetch   Fetch   `toml:"fetch"`
	Retry   Retry   `toml:"retry"`
	Guard   Guard   `toml:"guard"`
	Merge   Merge   `toml:"merge"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gamecatalog/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gamecatalog.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.DatasetPath),
		filepath.Dir(c.Paths.VersionImageCache),
		filepath.Dir(c.Paths.HistoryDB),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.BGG.RequestTimeout) * time.Second
}

// PacingInterval returns the courtesy delay between batches.
func (c *Config) PacingInterval() time.Duration {
	return millis(c.Fetch.PacingIntervalMS)
}

// PacingJitter returns the upper bound of random jitter added to pacing delays.
func (c *Config) PacingJitter() time.Duration {
	return millis(c.Fetch.PacingJitterMS)
}

// RetrySettings returns the backoff parameters as durations.
func (c *Config) RetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries:     c.Retry.MaxRetries,
		BaseDelay:      millis(c.Retry.BaseDelayMS),
		Multiplier:     c.Retry.Multiplier,
		MaxDelay:       millis(c.Retry.MaxDelayMS),
		QueuedDelay:    millis(c.Retry.QueuedDelayMS),
		MaxQueuedPolls: c.Retry.MaxQueuedPolls,
		FixedDelay:     millis(c.Retry.FixedDelayMS),
		Jitter:         millis(c.Retry.JitterMS),
	}
}

// RetrySettings mirrors Retry with durations instead of raw milliseconds.
type RetrySettings struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	QueuedDelay    time.Duration
	MaxQueuedPolls int
	FixedDelay     time.Duration
	Jitter         time.Duration
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
