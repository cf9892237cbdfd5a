// Package fetch drives batched upstream lookups.
//
// Policy is a pure retry/failover state machine: given the classification of a
// response and the current per-host state it decides whether to retry the same
// host after a delay, switch to the next host, or abandon the chunk. The
// Orchestrator partitions identifiers into capped chunks, walks hosts in
// priority order under the policy, decomposes abandoned chunks into
// single-identifier requests, and paces requests with jitter. Failures below
// identifier granularity never escape Fetch; they are reported in Result.
package fetch
