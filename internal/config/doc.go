// Package config loads, normalizes, and validates gamecatalog configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves artifact paths relative to the data directory, reads
// TOML files, and honours environment fallbacks such as BGG_API_TOKEN and
// BUILD_MIN_ITEMS. The Config type centralizes every knob the fetch pipeline
// consumes: hosts, batch size, pacing, retry policy, and the dataset guard.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, deduplicated hosts, and clear validation errors.
package config
