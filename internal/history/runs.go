package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamecatalog/internal/catalog"
)

// timeLayout keeps a fixed fractional width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = "id, run_id, started_at, finished_at, mode, dry_run, requested, resolved, failed, records, fan_out, threshold, requests, failed_ids_json, error_message"

// Run is the persisted summary of one pipeline run.
type Run struct {
	ID         int64
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Mode is the guard decision, or empty when the run aborted before writing.
	Mode      string
	DryRun    bool
	Requested int
	Resolved  int
	Failed    int
	Records   int
	FanOut    int
	Threshold int
	Requests  int
	FailedIDs []catalog.Identifier
	Error     string
}

// Duration returns the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Record inserts a run summary and returns its row id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if strings.TrimSpace(run.RunID) == "" {
		return 0, errors.New("run id is required")
	}
	failedJSON, err := json.Marshal(run.FailedIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal failed ids: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (
            run_id, started_at, finished_at, mode, dry_run, requested, resolved,
            failed, records, fan_out, threshold, requests, failed_ids_json, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		nullableString(run.Mode),
		boolToInt(run.DryRun),
		run.Requested,
		run.Resolved,
		run.Failed,
		run.Records,
		run.FanOut,
		run.Threshold,
		run.Requests,
		string(failedJSON),
		nullableString(run.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Latest returns the newest run, or nil when none were recorded.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Clear removes every recorded run and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM runs")
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		startedRaw string
		finished   string
		mode       sql.NullString
		dryRun     int64
		failedJSON sql.NullString
		errMessage sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.RunID,
		&startedRaw,
		&finished,
		&mode,
		&dryRun,
		&run.Requested,
		&run.Resolved,
		&run.Failed,
		&run.Records,
		&run.FanOut,
		&run.Threshold,
		&run.Requests,
		&failedJSON,
		&errMessage,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finished)
	run.Mode = mode.String
	run.DryRun = dryRun != 0
	run.Error = errMessage.String
	if failedJSON.Valid && failedJSON.String != "" && failedJSON.String != "null" {
		if err := json.Unmarshal([]byte(failedJSON.String), &run.FailedIDs); err != nil {
			return Run{}, fmt.Errorf("decode failed ids: %w", err)
		}
	}
	return run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
