package preflight

import (
	"context"

	"gamecatalog/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. Upstream hosts
// are probed through fetcher; a nil fetcher skips them.
func RunAll(ctx context.Context, cfg *config.Config, fetcher Fetcher) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckOverrides(cfg.Paths.OverridesPath),
		CheckDataset(cfg.Paths.DatasetPath),
	}
	if fetcher != nil {
		for _, host := range cfg.BGG.Hosts {
			results = append(results, CheckHost(ctx, fetcher, host))
		}
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
