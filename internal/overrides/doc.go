// Package overrides loads curated override rows produced by the external
// spreadsheet resolver and groups them by identifier for the merger.
//
// The resolver emits a JSON list of objects whose scalars are loosely typed:
// identifiers and prices arrive as numbers or strings ("123", "123.0",
// "1,200"), and blank cells as empty strings. Decoding tolerates all of
// these; rows without a usable identifier are reported as unresolved.
package overrides
