package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
	"gamecatalog/internal/imagecache"
	"gamecatalog/internal/logging"
	"gamecatalog/internal/services"
)

// Fetcher performs one upstream request against one host.
type Fetcher interface {
	Fetch(ctx context.Context, host string, req bgg.ThingRequest) (bgg.Response, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Orchestrator drives the chunked, multi-host fetch loop. Requests are issued
// strictly sequentially, and an Orchestrator is not safe for concurrent use.
type Orchestrator struct {
	fetcher      Fetcher
	hosts        []string
	batchSize    int
	pacing       time.Duration
	pacingJitter time.Duration
	policy       Policy
	sleep        Sleeper
	jitter       JitterFunc
	logger       *slog.Logger
	images       *imagecache.Cache
	comments     bool
	pageSize     int
	commentsTop  int
	// paced is set once the first request has gone out.
	paced bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHosts sets the ordered host list.
func WithHosts(hosts ...string) Option {
	return func(o *Orchestrator) {
		o.hosts = o.hosts[:0]
		for _, host := range hosts {
			if host = strings.TrimRight(strings.TrimSpace(host), "/"); host != "" {
				o.hosts = append(o.hosts, host)
			}
		}
	}
}

// WithBatchSize sets the identifiers per request, capped at bgg.MaxBatchSize.
func WithBatchSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.batchSize = min(size, bgg.MaxBatchSize)
		}
	}
}

// WithPacing sets the courtesy delay between requests and its jitter bound.
func WithPacing(interval, jitter time.Duration) Option {
	return func(o *Orchestrator) {
		o.pacing = max(interval, 0)
		o.pacingJitter = max(jitter, 0)
	}
}

// WithPolicy replaces the retry policy.
func WithPolicy(policy Policy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithSleeper replaces the blocking sleep used for pacing and backoff.
func WithSleeper(sleeper Sleeper) Option {
	return func(o *Orchestrator) {
		if sleeper != nil {
			o.sleep = sleeper
		}
	}
}

// WithJitter replaces the jitter source for pacing and, unless the policy
// carries its own, for backoff.
func WithJitter(fn JitterFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.jitter = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithImageCache sets the cache consulted by ResolveVersionImages.
func WithImageCache(cache *imagecache.Cache) Option {
	return func(o *Orchestrator) {
		o.images = cache
	}
}

// WithComments requests comments with the given page size and keeps the top
// entries per record.
func WithComments(pageSize, top int) Option {
	return func(o *Orchestrator) {
		o.comments = pageSize > 0 && top > 0
		o.pageSize = pageSize
		o.commentsTop = top
	}
}

// New constructs an Orchestrator.
func New(fetcher Fetcher, opts ...Option) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	o := &Orchestrator{
		fetcher:   fetcher,
		batchSize: bgg.MaxBatchSize,
		sleep:     SleepWithContext,
		jitter:    DefaultJitter,
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.hosts) == 0 {
		return nil, errors.New("at least one host required")
	}
	if o.policy.Rand == nil {
		o.policy.Rand = o.jitter
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o, nil
}

// Result is the outcome of Fetch. Every requested identifier appears in
// exactly one of Records and Failed.
type Result struct {
	Records     map[catalog.Identifier]catalog.SourceRecord
	Failed      map[catalog.Identifier]catalog.FailureReason
	FailedOrder []catalog.Identifier
	Batches     []catalog.FetchOutcome
	// HostUsage counts accepted payloads per host.
	HostUsage map[string]int
	Requests  int
}

// Resolved returns the number of identifiers with a record.
func (r Result) Resolved() int {
	return len(r.Records)
}

// Canceled reports whether any identifier was abandoned because the run was
// canceled.
func (r Result) Canceled() bool {
	for _, reason := range r.Failed {
		if reason == catalog.FailureCanceled {
			return true
		}
	}
	return false
}

// Failures returns failed identifiers in the order they failed.
func (r Result) Failures() []catalog.Failure {
	out := make([]catalog.Failure, 0, len(r.FailedOrder))
	for _, id := range r.FailedOrder {
		out = append(out, catalog.Failure{ID: id, Reason: r.Failed[id]})
	}
	return out
}

// handler consumes an accepted payload and returns the identifiers it
// resolved. An error marks the payload malformed.
type handler func(body []byte, ids []catalog.Identifier) ([]catalog.Identifier, error)

type chunkStatus int

const (
	chunkOK chunkStatus = iota
	chunkAbandoned
	chunkCanceled
)

// run carries bookkeeping for one traversal.
type run struct {
	resolved  *catalog.IdentifierSet
	failed    map[catalog.Identifier]catalog.FailureReason
	order     []catalog.Identifier
	outcomes  []catalog.FetchOutcome
	hostUsage map[string]int
	requests  int
}

func newRun() *run {
	return &run{
		resolved:  &catalog.IdentifierSet{},
		failed:    make(map[catalog.Identifier]catalog.FailureReason),
		hostUsage: make(map[string]int),
	}
}

func (r *run) fail(id catalog.Identifier, reason catalog.FailureReason) {
	if r.resolved.Contains(id) {
		return
	}
	if _, ok := r.failed[id]; ok {
		return
	}
	r.failed[id] = reason
	r.order = append(r.order, id)
}

// Fetch resolves ids into SourceRecords. It never returns an error;
// unresolved identifiers are listed in Result.Failed.
func (o *Orchestrator) Fetch(ctx context.Context, ids []catalog.Identifier) Result {
	records := make(map[catalog.Identifier]catalog.SourceRecord)
	parseOpts := bgg.ParseOptions{}
	template := bgg.ThingRequest{Stats: true}
	if o.comments {
		template.Comments = true
		template.PageSize = o.pageSize
		parseOpts.CommentsTop = o.commentsTop
	}

	handle := func(body []byte, chunk []catalog.Identifier) ([]catalog.Identifier, error) {
		parsed, err := bgg.ParseThings(body, chunk, parseOpts)
		if err != nil {
			return nil, err
		}
		found := make([]catalog.Identifier, 0, len(parsed))
		for _, record := range parsed {
			if _, ok := records[record.ID]; ok {
				continue
			}
			records[record.ID] = record
			found = append(found, record.ID)
		}
		return found, nil
	}

	r := o.traverse(ctx, ids, template, handle)
	result := Result{
		Records:     records,
		Failed:      r.failed,
		FailedOrder: r.order,
		Batches:     r.outcomes,
		HostUsage:   r.hostUsage,
		Requests:    r.requests,
	}
	o.logger.Info("fetch complete",
		logging.Int("requested", r.resolved.Len()+len(r.failed)),
		logging.Int("resolved", len(records)),
		logging.Int("failed", len(r.failed)),
		logging.Int("batches", len(r.outcomes)),
		logging.Int("requests", r.requests))
	return result
}

// ResolveVersionImages returns image URLs for version identifiers, consulting
// the image cache first and storing new lookups in it. Versions that cannot be
// resolved are omitted.
func (o *Orchestrator) ResolveVersionImages(ctx context.Context, versionIDs []catalog.Identifier) map[catalog.Identifier]string {
	images := make(map[catalog.Identifier]string)
	pending := make([]catalog.Identifier, 0, len(versionIDs))
	for _, id := range catalog.NewIdentifierSet(versionIDs...).Slice() {
		if o.images != nil {
			if url, ok := o.images.Lookup(id); ok {
				images[id] = url
				continue
			}
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return images
	}

	handle := func(body []byte, chunk []catalog.Identifier) ([]catalog.Identifier, error) {
		found, err := bgg.ParseVersionImages(body, chunk)
		if err != nil {
			return nil, err
		}
		ids := make([]catalog.Identifier, 0, len(found))
		for id, url := range found {
			images[id] = url
			if o.images != nil {
				o.images.Put(id, url)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	r := o.traverse(ctx, pending, bgg.ThingRequest{Type: bgg.TypeVersion}, handle)
	if len(r.failed) > 0 {
		logging.WarnWithContext(o.logger, "version images unresolved", "version_image_unresolved",
			logging.Int("unresolved", len(r.failed)),
			logging.Identifiers("versions", r.order),
			logging.String(logging.FieldErrorHint, "verify image_version_id values in the override file"),
			logging.String(logging.FieldImpact, "affected records keep the default image"))
	}
	if o.images != nil {
		if err := o.images.Flush(); err != nil {
			logging.WarnWithContext(o.logger, "failed to persist version image cache", "imagecache_save_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the cache directory"),
				logging.String(logging.FieldImpact, "version images will be fetched again next run"))
		}
	}
	return images
}

// traverse runs the chunk loop shared by Fetch and ResolveVersionImages.
func (o *Orchestrator) traverse(ctx context.Context, ids []catalog.Identifier, template bgg.ThingRequest, handle handler) *run {
	r := newRun()
	chunks := catalog.NewIdentifierSet(ids...).Chunks(o.batchSize)

	for index, chunk := range chunks {
		batch := index + 1
		if ctx.Err() != nil {
			o.cancelRemaining(r, chunks[index:])
			break
		}
		outcome, status := o.runChunk(ctx, r, batch, chunk, template, handle, false)
		switch status {
		case chunkOK:
			r.outcomes = append(r.outcomes, outcome)
			continue
		case chunkCanceled:
			r.outcomes = append(r.outcomes, outcome)
			o.cancelRemaining(r, chunks[index:])
			return r
		}

		if len(chunk) == 1 {
			r.fail(chunk[0], catalog.FailureExhausted)
			outcome.Failed = append([]catalog.Identifier(nil), chunk...)
			r.outcomes = append(r.outcomes, outcome)
			continue
		}

		outcome.Decomposed = true
		r.outcomes = append(r.outcomes, outcome)
		logging.WarnWithContext(o.batchLogger(ctx, batch), "batch abandoned on all hosts; retrying identifiers individually", "batch_decomposed",
			logging.Int("identifiers", len(chunk)),
			logging.Identifiers("ids", chunk),
			logging.String(logging.FieldErrorHint, "upstream may be degraded or one identifier may be poisoning the batch"),
			logging.String(logging.FieldImpact, "batch falls back to one request per identifier"))

		for i, id := range chunk {
			single, status := o.runChunk(ctx, r, batch, []catalog.Identifier{id}, template, handle, true)
			if status == chunkAbandoned {
				r.fail(id, catalog.FailureExhausted)
				single.Failed = []catalog.Identifier{id}
			}
			r.outcomes = append(r.outcomes, single)
			if status == chunkCanceled {
				o.cancelRemaining(r, [][]catalog.Identifier{chunk[i:]})
				o.cancelRemaining(r, chunks[index+1:])
				return r
			}
		}
	}
	return r
}

// runChunk walks hosts for one chunk under the policy.
func (o *Orchestrator) runChunk(ctx context.Context, r *run, batch int, chunk []catalog.Identifier, template bgg.ThingRequest, handle handler, singleton bool) (catalog.FetchOutcome, chunkStatus) {
	outcome := catalog.FetchOutcome{
		Batch:       batch,
		Identifiers: append([]catalog.Identifier(nil), chunk...),
		Singleton:   singleton,
	}
	logger := o.batchLogger(ctx, batch)

	if err := o.pace(ctx); err != nil {
		o.cancelChunk(r, &outcome)
		return outcome, chunkCanceled
	}

	req := template
	req.IDs = chunk
	for hostIndex, host := range o.hosts {
		state := State{}
		for {
			resp, err := o.fetcher.Fetch(ctx, host, req)
			r.requests++
			outcome.Attempts++
			if ctx.Err() != nil {
				o.cancelChunk(r, &outcome)
				return outcome, chunkCanceled
			}

			var found []catalog.Identifier
			var parseErr error
			if err == nil && resp.Status != http.StatusAccepted && resp.Status >= 200 && resp.Status < 300 {
				found, parseErr = handle(resp.Body, chunk)
			}
			class := Classify(resp.Status, err, parseErr)
			if class == ClassOK {
				o.accept(r, &outcome, host, chunk, found)
				logger.Debug("batch fetched",
					logging.String(logging.FieldHost, host),
					logging.Int("identifiers", len(chunk)),
					logging.Int("resolved", len(found)),
					logging.Int("attempts", outcome.Attempts))
				return outcome, chunkOK
			}

			action, next := o.policy.Decide(state, class, hostIndex, len(o.hosts))
			state = next
			o.logAttempt(logger, host, class, action, resp.Status, firstErr(err, parseErr))
			switch action.Kind {
			case ActionRetry:
				if err := o.sleep(ctx, action.Delay); err != nil {
					o.cancelChunk(r, &outcome)
					return outcome, chunkCanceled
				}
				continue
			case ActionAbandon:
				return outcome, chunkAbandoned
			}
			break
		}
	}
	return outcome, chunkAbandoned
}

func (o *Orchestrator) accept(r *run, outcome *catalog.FetchOutcome, host string, chunk, found []catalog.Identifier) {
	outcome.Host = host
	r.hostUsage[host]++
	for _, id := range found {
		r.resolved.Add(id)
	}
	for _, id := range chunk {
		if r.resolved.Contains(id) {
			outcome.Succeeded = append(outcome.Succeeded, id)
			continue
		}
		r.fail(id, catalog.FailureMissing)
		outcome.Failed = append(outcome.Failed, id)
	}
}

func (o *Orchestrator) cancelChunk(r *run, outcome *catalog.FetchOutcome) {
	for _, id := range outcome.Identifiers {
		r.fail(id, catalog.FailureCanceled)
	}
	outcome.Failed = append([]catalog.Identifier(nil), outcome.Identifiers...)
}

func (o *Orchestrator) cancelRemaining(r *run, chunks [][]catalog.Identifier) {
	for _, chunk := range chunks {
		for _, id := range chunk {
			r.fail(id, catalog.FailureCanceled)
		}
	}
}

// pace sleeps the courtesy interval before every request sequence except the
// orchestrator's first. The interval also separates consecutive traversals.
func (o *Orchestrator) pace(ctx context.Context) error {
	if !o.paced {
		o.paced = true
		return ctx.Err()
	}
	delay := o.pacing
	if o.pacingJitter > 0 {
		delay += min(max(o.jitter(o.pacingJitter), 0), o.pacingJitter)
	}
	return o.sleep(ctx, delay)
}

func (o *Orchestrator) batchLogger(ctx context.Context, batch int) *slog.Logger {
	return logging.WithContext(services.WithBatch(ctx, batch), o.logger)
}

func (o *Orchestrator) logAttempt(logger *slog.Logger, host string, class Class, action Action, status int, err error) {
	attrs := []logging.Attr{
		logging.String(logging.FieldHost, host),
		logging.String("classification", class.String()),
		logging.String("action", action.Kind.String()),
		logging.Int("status", status),
	}
	if action.Kind == ActionRetry {
		attrs = append(attrs, logging.Duration("delay", action.Delay))
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	if class == ClassQueued {
		logger.Debug("upstream still preparing response", logging.Args(attrs...)...)
		return
	}
	switch action.Kind {
	case ActionRetry:
		attrs = append(attrs,
			logging.String(logging.FieldErrorHint, "upstream is throttling or unstable; the request will be retried"),
			logging.String(logging.FieldImpact, "batch delayed"))
	default:
		attrs = append(attrs,
			logging.String(logging.FieldErrorHint, fmt.Sprintf("check availability of %s", host)),
			logging.String(logging.FieldImpact, "batch moves to the next host or is decomposed"))
	}
	logging.WarnWithContext(logger, "upstream request failed", "bgg_request_failed", attrs...)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
