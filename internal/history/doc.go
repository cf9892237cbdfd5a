// Package history persists one summary row per pipeline run in SQLite.
//
// The store is opened once per CLI invocation. Writes retry briefly on
// SQLITE_BUSY so a `history` listing running alongside a fetch does not fail.
// The schema is embedded and versioned; a version mismatch is reported rather
// than migrated.
package history
