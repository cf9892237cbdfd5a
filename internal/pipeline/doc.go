// Package pipeline drives one catalog build: load inputs, fetch upstream
// records, resolve version images, merge overrides, apply the yield guard,
// write the dataset, and record the run in history.
//
// Each step runs as a named stage so logs carry the run id and stage. Only a
// cold start or a setup failure (unreadable inputs, invalid merge fields, a
// held dataset lock) ends a run with an error; identifier-level failures are
// reported in the Summary.
package pipeline
