package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/config"
	"gamecatalog/internal/logging"
	"gamecatalog/internal/services"
)

func tempLogFile(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	return logPath, func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("fetch started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "fetch started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := read(); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := read(); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersSubject(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "0123456789abcdef")
	ctx = services.WithBatch(ctx, 3)
	ctx = services.WithStage(ctx, "fetch")
	logger = logging.NewComponentLogger(logging.WithContext(ctx, logger), "orchestrator")
	logger.Info("batch complete", logging.Int("succeeded", 18))

	content := read()
	for _, want := range []string{"[orchestrator]", "Run 01234567", "Batch #3 (fetch)", "batch complete", "succeeded: 18"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in console output, got %q", want, content)
		}
	}
	if strings.Contains(content, "run_id:") {
		t.Fatalf("expected run_id folded into header, got %q", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithRequestID(ctx, "req-9")
	logging.WithContext(ctx, logger).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["run_id"] != "run-1" {
		t.Fatalf("expected run_id field, got %v", entry)
	}
	if entry["correlation_id"] != "req-9" {
		t.Fatalf("expected correlation_id field, got %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "host throttled", "bgg_throttled", logging.String(logging.FieldImpact, "batch delayed"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry[logging.FieldEventType] != "bgg_throttled" {
		t.Fatalf("expected event_type, got %v", entry)
	}
	if entry[logging.FieldErrorHint] != "see the run summary for affected identifiers" {
		t.Fatalf("expected default error_hint, got %v", entry)
	}
	if entry[logging.FieldImpact] != "batch delayed" {
		t.Fatalf("expected caller impact preserved, got %v", entry)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFormatSubject(t *testing.T) {
	tests := []struct {
		runID, batch, stage string
		want                string
	}{
		{"", "", "", ""},
		{"abc", "", "", "Run abc"},
		{"", "2", "", "Batch #2"},
		{"", "", "merge", "merge"},
		{"abcdefghij", "1", "fetch", "Run abcdefgh · Batch #1 (fetch)"},
	}
	for _, tt := range tests {
		if got := logging.FormatSubject(tt.runID, tt.batch, tt.stage); got != tt.want {
			t.Errorf("FormatSubject(%q, %q, %q) = %q, want %q", tt.runID, tt.batch, tt.stage, got, tt.want)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("expected nop logger to be disabled")
	}
}

func TestIdentifiersAttrTruncatesLongLists(t *testing.T) {
	ids := make([]catalog.Identifier, 0, 25)
	for i := 1; i <= 25; i++ {
		ids = append(ids, catalog.Identifier(i))
	}
	attr := logging.Identifiers("ids", ids)
	want := "1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20 +5 more"
	if got := attr.Value.String(); got != want {
		t.Fatalf("Identifiers = %q, want %q", got, want)
	}
	if got := logging.Identifiers("ids", ids[:2]).Value.String(); got != "1,2" {
		t.Fatalf("short list = %q", got)
	}
}

func TestConsoleLoggerRoundsDurations(t *testing.T) {
	logPath, read := tempLogFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("backing off",
		logging.Duration("delay", 1234567*time.Microsecond),
		logging.Duration("jitter", 1500*time.Microsecond))

	out := read()
	if !strings.Contains(out, "- delay: 1.23s") {
		t.Fatalf("expected rounded delay, got %q", out)
	}
	if !strings.Contains(out, "- jitter: 2ms") {
		t.Fatalf("expected millisecond jitter, got %q", out)
	}
}
