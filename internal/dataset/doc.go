// Package dataset persists the published catalog artifact and decides how a
// run's output replaces it.
//
// Store reads and writes the artifact. Writes go to a temporary file in the
// same directory, are synced, and are renamed into place so readers never
// observe a truncated file. A sibling lock file serializes concurrent runs.
//
// Guard inspects the yield of a run against the minimum threshold and either
// replaces the previous dataset, folds the new records into it at identifier
// granularity, or refuses a cold start.
package dataset
