package dataset

import (
	"fmt"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/services"
)

// Mode names how a run's output is persisted.
type Mode string

const (
	// ModeReplace writes the new dataset over the previous one.
	ModeReplace Mode = "replace"
	// ModeIncremental folds fetched identifiers into the previous dataset.
	ModeIncremental Mode = "incremental"
)

// Plan is the guard decision together with the dataset to persist.
type Plan struct {
	Mode      Mode
	Dataset   *catalog.Dataset
	Yield     int
	Threshold int
	// Updated counts previous identifiers replaced by fetched records.
	Updated int
	// Kept counts previous identifiers, and previous records without a
	// valid identifier, carried over unchanged.
	Kept int
	// Added counts identifiers absent from the previous dataset.
	Added int
	// Interrupted is set when the run stopped early.
	Interrupted bool
}

// GuardOption adjusts a Guard decision.
type GuardOption func(*guardSettings)

type guardSettings struct {
	interrupted bool
}

// WithInterrupted marks next as the output of a run that stopped before
// every identifier was attempted. An interrupted run never replaces an
// existing dataset, whatever its yield.
func WithInterrupted(interrupted bool) GuardOption {
	return func(s *guardSettings) {
		s.interrupted = interrupted
	}
}

// Guard decides how next replaces prev. The yield is the number of distinct
// identifiers in next that were fetched from upstream. A yield of at least
// threshold replaces prev outright. A lower yield against an existing
// dataset keeps every previous record: identifiers fetched this run swap in
// their new records, the rest (including records without a valid
// identifier) stay in place, and identifiers only next knows are appended.
// A low yield with nothing to fall back on is a cold start and returns an
// error wrapping ErrColdStart.
func Guard(next, prev *catalog.Dataset, threshold int, opts ...GuardOption) (Plan, error) {
	var settings guardSettings
	for _, opt := range opts {
		opt(&settings)
	}
	if next == nil {
		next = &catalog.Dataset{}
	}
	yield := next.FetchedCount()
	plan := Plan{Yield: yield, Threshold: threshold, Interrupted: settings.interrupted}

	if yield >= threshold && (prev == nil || !settings.interrupted) {
		plan.Mode = ModeReplace
		plan.Dataset = envelope(next, next.Records)
		plan.Added = len(next.Identifiers())
		return plan, nil
	}
	if prev == nil {
		return plan, coldStart(yield, threshold)
	}

	plan.Mode = ModeIncremental
	fresh := next.ByIdentifier()
	fetched := make(map[catalog.Identifier]bool, len(fresh))
	for id, group := range fresh {
		for _, record := range group {
			if record.Fetched {
				fetched[id] = true
				break
			}
		}
	}

	previous := prev.ByIdentifier()
	emitted := make(map[catalog.Identifier]bool, len(previous))
	records := make([]catalog.MergedRecord, 0, max(prev.Len(), next.Len()))
	for _, record := range prev.Records {
		id := record.ID
		if !id.Valid() {
			records = append(records, record)
			plan.Kept++
			continue
		}
		if emitted[id] {
			continue
		}
		emitted[id] = true
		if fetched[id] {
			records = append(records, fresh[id]...)
			plan.Updated++
			continue
		}
		records = append(records, previous[id]...)
		plan.Kept++
	}
	for _, id := range next.Identifiers() {
		if emitted[id] {
			continue
		}
		records = append(records, fresh[id]...)
		plan.Added++
	}
	plan.Dataset = envelope(next, records)
	return plan, nil
}

func envelope(next *catalog.Dataset, records []catalog.MergedRecord) *catalog.Dataset {
	if records == nil {
		records = []catalog.MergedRecord{}
	}
	return &catalog.Dataset{
		SchemaVersion: catalog.SchemaVersion,
		GeneratedAt:   next.GeneratedAt,
		RunID:         next.RunID,
		Records:       records,
	}
}

func coldStart(yield, threshold int) error {
	return services.Wrap(
		services.ErrColdStart,
		"guard",
		"evaluate yield",
		fmt.Sprintf("fetched %d identifiers, below minimum yield %d, and no previous dataset exists; refusing to publish", yield, threshold),
		nil,
	)
}
