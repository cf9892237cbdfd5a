package catalog

import "time"

// SchemaVersion is the dataset envelope version written by this build.
const SchemaVersion = 1

// Dataset is the ordered collection of merged records produced by one run.
type Dataset struct {
	SchemaVersion int            `json:"schema_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	RunID         string         `json:"run_id,omitempty"`
	Records       []MergedRecord `json:"records"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Identifiers returns the distinct identifiers in first-seen record order.
func (d *Dataset) Identifiers() []Identifier {
	if d == nil {
		return nil
	}
	set := &IdentifierSet{}
	for _, record := range d.Records {
		set.Add(record.ID)
	}
	return set.Slice()
}

// ByIdentifier groups records by identifier, preserving record order within
// each group.
func (d *Dataset) ByIdentifier() map[Identifier][]MergedRecord {
	if d == nil {
		return nil
	}
	groups := make(map[Identifier][]MergedRecord)
	for _, record := range d.Records {
		groups[record.ID] = append(groups[record.ID], record)
	}
	return groups
}

// FetchedCount returns the number of distinct identifiers backed by an
// upstream record.
func (d *Dataset) FetchedCount() int {
	if d == nil {
		return 0
	}
	seen := make(map[Identifier]struct{})
	for _, record := range d.Records {
		if record.Fetched {
			seen[record.ID] = struct{}{}
		}
	}
	return len(seen)
}
