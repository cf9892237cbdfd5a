package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
	"gamecatalog/internal/config"
	"gamecatalog/internal/dataset"
	"gamecatalog/internal/fetch"
	"gamecatalog/internal/history"
	"gamecatalog/internal/imagecache"
	"gamecatalog/internal/logging"
	"gamecatalog/internal/merge"
	"gamecatalog/internal/overrides"
	"gamecatalog/internal/services"
)

// Runner executes pipeline runs for one configuration.
type Runner struct {
	cfg      *config.Config
	fetcher  fetch.Fetcher
	history  *history.Store
	base     *slog.Logger
	logger   *slog.Logger
	sleeper  fetch.Sleeper
	jitter   fetch.JitterFunc
	imgStore imagecache.Store
	now      func() time.Time
	newID    func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithFetcher replaces the upstream client.
func WithFetcher(fetcher fetch.Fetcher) Option {
	return func(r *Runner) {
		r.fetcher = fetcher
	}
}

// WithHistory records each run in store.
func WithHistory(store *history.Store) Option {
	return func(r *Runner) {
		r.history = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithSleeper replaces the blocking sleep used by the orchestrator.
func WithSleeper(sleeper fetch.Sleeper) Option {
	return func(r *Runner) {
		r.sleeper = sleeper
	}
}

// WithJitter replaces the jitter source used by the orchestrator.
func WithJitter(fn fetch.JitterFunc) Option {
	return func(r *Runner) {
		r.jitter = fn
	}
}

// WithImageStore replaces the version image cache store.
func WithImageStore(store imagecache.Store) Option {
	return func(r *Runner) {
		r.imgStore = store
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner constructs a Runner. Without WithFetcher an HTTP client built
// from cfg is used.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	r := &Runner{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = bgg.New(
			bgg.WithToken(cfg.BGG.APIToken),
			bgg.WithUserAgent(cfg.BGG.UserAgent),
			bgg.WithTimeout(cfg.RequestTimeout()),
		)
	}
	if r.imgStore == nil && cfg.BGG.ResolveVersionImages {
		r.imgStore = imagecache.NewFileStore(cfg.Paths.VersionImageCache)
	}
	r.base = r.logger
	if r.base == nil {
		r.base = logging.NewNop()
	}
	r.logger = logging.NewComponentLogger(r.base, "pipeline")
	return r, nil
}

// Run executes one build.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	started := r.now()
	runID := r.newID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	summary := Summary{
		RunID:       runID,
		StartedAt:   started,
		DryRun:      req.DryRun,
		Threshold:   r.cfg.Guard.MinYield,
		DatasetPath: r.cfg.Paths.DatasetPath,
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Bool("dry_run", req.DryRun),
		logging.Int("min_yield", r.cfg.Guard.MinYield))

	err := r.execute(ctx, logger, req, &summary)
	summary.Duration = r.now().Sub(started)
	r.recordHistory(ctx, logger, summary, err)

	if err != nil {
		logging.ErrorWithContext(logger, "run aborted", "run_aborted",
			logging.Error(err),
			logging.Int("requested", summary.Requested),
			logging.Int("resolved", summary.Resolved),
			logging.Int("failed", summary.Failed),
			logging.String(logging.FieldErrorHint, errorHint(err)))
		return summary, err
	}
	logger.Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("requested", summary.Requested),
		logging.Int("resolved", summary.Resolved),
		logging.Int("failed", summary.Failed),
		logging.Int("records", summary.Records),
		logging.Int("fan_out", summary.FanOut),
		logging.String("mode", string(summary.Mode)),
		logging.Bool("written", summary.Written),
		logging.Duration("duration", summary.Duration))
	return summary, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, req Request, summary *Summary) error {
	fields, err := merge.NewFieldSet(r.cfg.Merge.OverrideFields)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "merge fields", "", err)
	}

	// Collaborators tag their own component on top of the run fields.
	sub := logging.WithContext(ctx, r.base)
	store := dataset.NewStore(r.cfg.Paths.DatasetPath, r.cfg.Guard.BackupPrevious, sub)
	if !req.DryRun {
		if err := store.Lock(); err != nil {
			return err
		}
		defer func() {
			if err := store.Unlock(); err != nil {
				logging.WarnWithContext(logger, "failed to release dataset lock", "dataset_unlock_failed",
					logging.Error(err),
					logging.String("lock", store.LockPath()),
					logging.String(logging.FieldImpact, "the next run may report the dataset as locked"))
			}
		}()
	}

	var (
		set  *overrides.Set
		prev *catalog.Dataset
	)
	if err := r.stage(ctx, "load", func(ctx context.Context, logger *slog.Logger) error {
		var loadErr error
		set, loadErr = r.loadOverrides(logger)
		if loadErr != nil {
			return loadErr
		}
		prev, loadErr = store.Load()
		if loadErr != nil {
			return loadErr
		}
		logger.Info("inputs loaded",
			logging.Int("override_rows", set.RowCount()),
			logging.Int("override_identifiers", len(set.Order)),
			logging.Int("previous_records", prev.Len()))
		return nil
	}); err != nil {
		return err
	}

	ids := catalog.NewIdentifierSet(set.Order...)
	for _, id := range req.ExtraIDs {
		ids.Add(id)
	}
	summary.Requested = ids.Len()
	summary.Unresolved = len(set.Unresolved)

	orchestrator, err := r.orchestrator(sub)
	if err != nil {
		return err
	}

	var result fetch.Result
	if err := r.stage(ctx, "fetch", func(ctx context.Context, stageLogger *slog.Logger) error {
		result = orchestrator.Fetch(ctx, ids.Slice())
		if len(result.FailedOrder) > 0 {
			logging.WarnWithContext(stageLogger, "identifiers unresolved after all hosts", "identifiers_failed",
				logging.Int("failed", len(result.FailedOrder)),
				logging.Identifiers("ids", result.FailedOrder),
				logging.String(logging.FieldImpact, "failed identifiers are excluded from this run"))
		}
		return nil
	}); err != nil {
		return err
	}
	summary.Resolved = result.Resolved()
	summary.Interrupted = ctx.Err() != nil || result.Canceled()
	summary.Failures = result.Failures()
	summary.Failed = len(summary.Failures)
	summary.Requests = result.Requests
	summary.HostUsage = result.HostUsage

	var images map[catalog.Identifier]string
	if r.cfg.BGG.ResolveVersionImages {
		if err := r.stage(ctx, "images", func(ctx context.Context, _ *slog.Logger) error {
			images = orchestrator.ResolveVersionImages(ctx, versionIdentifiers(set))
			return nil
		}); err != nil {
			return err
		}
		summary.Images = len(images)
	}

	merger := merge.New(merge.WithFields(fields), merge.WithVersionImages(images), merge.WithLogger(sub))
	records := merger.Merge(ids.Slice(), result.Records, set.Rows)
	summary.Records = len(records)
	summary.FanOut = fanOut(set)

	next := &catalog.Dataset{
		SchemaVersion: catalog.SchemaVersion,
		GeneratedAt:   r.now().UTC(),
		RunID:         summary.RunID,
		Records:       records,
	}

	return r.stage(ctx, "guard", func(ctx context.Context, logger *slog.Logger) error {
		plan, err := dataset.Guard(next, prev, r.cfg.Guard.MinYield, dataset.WithInterrupted(summary.Interrupted))
		summary.Yield = plan.Yield
		if err != nil {
			return err
		}
		summary.Mode = plan.Mode
		summary.Updated = plan.Updated
		summary.Kept = plan.Kept
		summary.Added = plan.Added
		summary.Records = plan.Dataset.Len()
		switch {
		case plan.Mode == dataset.ModeIncremental && plan.Interrupted:
			logging.WarnWithContext(logger, "run interrupted; merging into previous dataset", "run_interrupted",
				logging.Int("yield", plan.Yield),
				logging.Int("updated", plan.Updated),
				logging.Int("kept", plan.Kept),
				logging.String(logging.FieldErrorHint, "rerun to refresh the identifiers marked canceled"),
				logging.String(logging.FieldImpact, "previous records kept for identifiers not fetched this run"))
		case plan.Mode == dataset.ModeIncremental:
			logging.WarnWithContext(logger, "yield below threshold; merging into previous dataset", "yield_insufficient",
				logging.Int("yield", plan.Yield),
				logging.Int("min_yield", plan.Threshold),
				logging.Int("updated", plan.Updated),
				logging.Int("kept", plan.Kept),
				logging.String(logging.FieldErrorHint, "check upstream availability and the failed identifiers"),
				logging.String(logging.FieldImpact, "previous records kept for identifiers not fetched this run"))
		}
		if req.DryRun {
			logger.Info("dry run; dataset not written", logging.String("mode", string(plan.Mode)))
			return nil
		}
		if err := store.Write(plan.Dataset); err != nil {
			return err
		}
		summary.Written = true
		return nil
	})
}

func (r *Runner) loadOverrides(logger *slog.Logger) (*overrides.Set, error) {
	set, err := overrides.Load(r.cfg.Paths.OverridesPath)
	if errors.Is(err, services.ErrNotFound) {
		logging.WarnWithContext(logger, "override file not found", "overrides_missing",
			logging.String("path", r.cfg.Paths.OverridesPath),
			logging.String(logging.FieldErrorHint, "run the spreadsheet resolver or pass --id"),
			logging.String(logging.FieldImpact, "only extra identifiers are fetched"))
		return overrides.Group(nil), nil
	}
	if err != nil {
		return nil, err
	}
	if len(set.Unresolved) > 0 {
		queries := make([]string, 0, len(set.Unresolved))
		for _, row := range set.Unresolved {
			queries = append(queries, row.Query)
		}
		logging.WarnWithContext(logger, "override rows without identifier skipped", "overrides_unresolved",
			logging.Int("rows", len(set.Unresolved)),
			logging.Any("queries", queries),
			logging.String(logging.FieldErrorHint, "resolve bgg_query values to bgg_id"),
			logging.String(logging.FieldImpact, "these rows are not published"))
	}
	return set, nil
}

func (r *Runner) orchestrator(logger *slog.Logger) (*fetch.Orchestrator, error) {
	opts := []fetch.Option{
		fetch.WithHosts(r.cfg.BGG.Hosts...),
		fetch.WithBatchSize(r.cfg.Fetch.BatchSize),
		fetch.WithPacing(r.cfg.PacingInterval(), r.cfg.PacingJitter()),
		fetch.WithPolicy(fetch.PolicyFromSettings(r.cfg.RetrySettings())),
		fetch.WithLogger(logger),
	}
	if r.sleeper != nil {
		opts = append(opts, fetch.WithSleeper(r.sleeper))
	}
	if r.jitter != nil {
		opts = append(opts, fetch.WithJitter(r.jitter))
	}
	if r.cfg.BGG.FetchComments {
		opts = append(opts, fetch.WithComments(r.cfg.BGG.CommentsPageSize, r.cfg.BGG.CommentsTop))
	}
	if r.cfg.BGG.ResolveVersionImages && r.imgStore != nil {
		opts = append(opts, fetch.WithImageCache(imagecache.NewCache(r.imgStore, logger)))
	}
	orchestrator, err := fetch.New(r.fetcher, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init fetch", "", err)
	}
	return orchestrator, nil
}

// stage runs fn with the stage recorded on the context and logger.
func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context, *slog.Logger) error) error {
	stageCtx := services.WithStage(ctx, name)
	stageLogger := logging.WithContext(stageCtx, r.logger)
	started := r.now()
	stageLogger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := fn(stageCtx, stageLogger); err != nil {
		return err
	}
	stageLogger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", r.now().Sub(started)))
	return nil
}

func (r *Runner) recordHistory(ctx context.Context, logger *slog.Logger, summary Summary, runErr error) {
	if r.history == nil {
		return
	}
	run := history.Run{
		RunID:      summary.RunID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.StartedAt.Add(summary.Duration),
		Mode:       string(summary.Mode),
		DryRun:     summary.DryRun,
		Requested:  summary.Requested,
		Resolved:   summary.Resolved,
		Failed:     summary.Failed,
		Records:    summary.Records,
		FanOut:     summary.FanOut,
		Threshold:  summary.Threshold,
		Requests:   summary.Requests,
		FailedIDs:  summary.FailedIdentifiers(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Canceled runs are still recorded.
	if _, err := r.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "failed to record run history", "history_record_failed",
			logging.Error(err),
			logging.String("history_db", r.history.Path()),
			logging.String(logging.FieldImpact, "run is missing from `gamecatalog history`"))
	}
}

// versionIdentifiers collects image versions for rows that allow automatic
// image selection.
func versionIdentifiers(set *overrides.Set) []catalog.Identifier {
	ids := &catalog.IdentifierSet{}
	for _, id := range set.Order {
		for _, row := range set.Rows[id] {
			if row.HasImageOverride() || row.IsManual() || row.ImageVersionID == "" {
				continue
			}
			if versionID, err := catalog.ParseIdentifier(row.ImageVersionID); err == nil {
				ids.Add(versionID)
			}
		}
	}
	return ids.Slice()
}

func fanOut(set *overrides.Set) int {
	total := 0
	for _, rows := range set.Rows {
		if len(rows) > 1 {
			total += len(rows)
		}
	}
	return total
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrColdStart):
		return "no previous dataset to fall back on; lower guard.min_yield or BUILD_MIN_ITEMS, or fix upstream access"
	case errors.Is(err, dataset.ErrLocked):
		return "another run holds the dataset lock"
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return "check the configuration and input files"
	default:
		return "check logs for details"
	}
}
