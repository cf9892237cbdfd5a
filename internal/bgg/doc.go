// Package bgg talks to the BoardGameGeek XML API2 thing endpoint.
//
// Client issues raw requests against a single host and returns the status and
// body untouched; non-2xx statuses are not errors because callers classify
// them for retry and failover. ParseThings and ParseVersionImages turn
// payloads into catalog records and never depend on hidden state.
package bgg
