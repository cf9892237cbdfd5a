package catalog

// FailureReason explains why an identifier produced no SourceRecord.
type FailureReason string

const (
	// FailureExhausted means every host and the per-identifier fallback failed.
	FailureExhausted FailureReason = "exhausted"
	// FailureMissing means upstream answered successfully but omitted the identifier.
	FailureMissing FailureReason = "missing"
	// FailureCanceled means the run was canceled before the identifier was fetched.
	FailureCanceled FailureReason = "canceled"
)

// Failure records one unresolved identifier.
type Failure struct {
	ID     Identifier    `json:"bgg_id"`
	Reason FailureReason `json:"reason"`
}

// FetchOutcome is per-batch bookkeeping for one upstream request sequence.
type FetchOutcome struct {
	Batch       int
	Identifiers []Identifier
	Succeeded   []Identifier
	Failed      []Identifier
	// Host is the host that produced the accepted payload, empty on failure.
	Host       string
	Attempts   int
	Decomposed bool
	// Singleton marks a per-identifier request issued by decomposition.
	Singleton bool
}
