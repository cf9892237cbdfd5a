package pipeline

import (
	"time"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/dataset"
)

// Request parameterizes one run.
type Request struct {
	// ExtraIDs are fetched in addition to the identifiers in the override file.
	ExtraIDs []catalog.Identifier
	// DryRun computes the guard plan without writing the dataset.
	DryRun bool
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	DryRun     bool
	Requested  int
	Resolved   int
	Failed     int
	Failures   []catalog.Failure
	Records    int
	FanOut     int
	Unresolved int
	Requests   int
	HostUsage  map[string]int
	Images     int
	Mode       dataset.Mode
	Yield      int
	Threshold  int
	Updated    int
	Kept       int
	Added      int
	// Interrupted is true when cancellation cut the fetch short.
	Interrupted bool
	// Written is true when the dataset artifact was replaced.
	Written     bool
	DatasetPath string
}

// FailedIdentifiers returns the failed identifiers in failure order.
func (s Summary) FailedIdentifiers() []catalog.Identifier {
	ids := make([]catalog.Identifier, 0, len(s.Failures))
	for _, failure := range s.Failures {
		ids = append(ids, failure.ID)
	}
	return ids
}
