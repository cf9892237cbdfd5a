package testsupport

import (
	"path/filepath"
	"testing"

	"gamecatalog/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Delays are zeroed so tests never sleep; apply options to restore them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.DatasetPath = filepath.Join(base, "games_full.json")
	cfgVal.Paths.OverridesPath = filepath.Join(base, "bgg_ids.json")
	cfgVal.Paths.VersionImageCache = filepath.Join(base, "cache", "version_images.json")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "history.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.BGG.Hosts = []string{"http://primary.invalid/xmlapi2", "http://secondary.invalid/xmlapi2"}
	cfgVal.BGG.APIToken = "test"
	cfgVal.Fetch.PacingIntervalMS = 0
	cfgVal.Fetch.PacingJitterMS = 0
	cfgVal.Retry.BaseDelayMS = 0
	cfgVal.Retry.MaxDelayMS = 0
	cfgVal.Retry.QueuedDelayMS = 0
	cfgVal.Retry.FixedDelayMS = 0
	cfgVal.Retry.JitterMS = 0
	cfgVal.Guard.MinYield = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHosts replaces the upstream host list.
func WithHosts(hosts ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.BGG.Hosts = append([]string(nil), hosts...)
	}
}

// WithMinYield sets the guard threshold.
func WithMinYield(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Guard.MinYield = n
	}
}

// WithBatchSize sets the request batch size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.BatchSize = n
	}
}

// WithOverrideFields restricts the merged override columns.
func WithOverrideFields(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.OverrideFields = append([]string(nil), names...)
	}
}

// WithoutVersionImages disables version image resolution.
func WithoutVersionImages() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.BGG.ResolveVersionImages = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
