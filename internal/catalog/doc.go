// Package catalog defines the data model shared by the fetch pipeline.
//
// Identifiers name upstream entities; OverrideRows carry locally curated
// columns; SourceRecords are parsed upstream entries; MergedRecords are the
// published unit; a Dataset is the ordered, versioned artifact written at the
// end of a run. FetchOutcome captures per-batch bookkeeping and is never
// persisted.
package catalog
