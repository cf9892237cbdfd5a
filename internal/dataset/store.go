package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/fileutil"
	"gamecatalog/internal/logging"
	"gamecatalog/internal/services"
)

const (
	backupSuffix = ".prev"
	lockSuffix   = ".lock"
)

// ErrLocked is returned when another run holds the dataset lock.
var ErrLocked = errors.New("dataset is locked by another run")

// Store reads and writes the dataset artifact at Path.
type Store struct {
	Path   string
	Backup bool

	logger *slog.Logger
	lock   *flock.Flock
}

// NewStore constructs a store for the artifact at path. When backup is set the
// artifact being replaced is copied to <path>.prev first.
func NewStore(path string, backup bool, logger *slog.Logger) *Store {
	path = strings.TrimSpace(path)
	return &Store{
		Path:   path,
		Backup: backup,
		logger: logging.NewComponentLogger(logger, "dataset"),
		lock:   flock.New(path + lockSuffix),
	}
}

// LockPath returns the lock file guarding the artifact.
func (s *Store) LockPath() string {
	return s.Path + lockSuffix
}

// BackupPath returns the location of the previous-artifact copy.
func (s *Store) BackupPath() string {
	return s.Path + backupSuffix
}

// Lock takes the exclusive run lock without blocking.
func (s *Store) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "dataset", "lock", "ensure dataset dir", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "dataset", "lock", "acquire lock", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.LockPath())
	}
	return nil
}

// Unlock releases the run lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Load reads the artifact. A missing file yields a nil dataset and no error.
// Both the versioned envelope and a bare record list are accepted.
func (s *Store) Load() (*catalog.Dataset, error) {
	payload, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "dataset", "load", "read dataset", err)
	}
	ds, err := Decode(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "dataset", "load", s.Path, err)
	}
	return ds, nil
}

// Decode parses an artifact payload.
func Decode(payload []byte) (*catalog.Dataset, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty dataset payload")
	}
	if trimmed[0] == '[' {
		records, err := decodeLegacy(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode legacy dataset: %w", err)
		}
		return &catalog.Dataset{Records: records}, nil
	}
	var ds catalog.Dataset
	if err := json.Unmarshal(trimmed, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if ds.SchemaVersion > catalog.SchemaVersion {
		return nil, fmt.Errorf("dataset schema version %d is newer than supported version %d", ds.SchemaVersion, catalog.SchemaVersion)
	}
	return &ds, nil
}

// decodeLegacy reads a bare record list. Older builds keyed records by "id"
// rather than "bgg_id"; either key is accepted. Records without a usable
// identifier are kept with a zero ID.
func decodeLegacy(payload []byte) ([]catalog.MergedRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	records := make([]catalog.MergedRecord, 0, len(raw))
	for i, item := range raw {
		var record catalog.MergedRecord
		if err := json.Unmarshal(item, &record); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if !record.ID.Valid() {
			var alias struct {
				ID json.RawMessage `json:"id"`
			}
			if err := json.Unmarshal(item, &alias); err == nil && len(alias.ID) > 0 {
				value := strings.Trim(string(alias.ID), `"`)
				if id, err := catalog.ParseIdentifier(value); err == nil {
					record.ID = id
				}
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// Write replaces the artifact atomically.
func (s *Store) Write(ds *catalog.Dataset) error {
	if ds == nil {
		return services.Wrap(services.ErrValidation, "dataset", "write", "nil dataset", nil)
	}
	if ds.Records == nil {
		ds.Records = []catalog.MergedRecord{}
	}
	payload, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "dataset", "write", "encode dataset", err)
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "dataset", "write", "ensure dataset dir", err)
	}
	if s.Backup {
		if err := s.backup(); err != nil {
			return err
		}
	}

	if err := fileutil.WriteAtomic(s.Path, payload, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "dataset", "write", "replace artifact", err)
	}
	if err := fileutil.SyncDir(dir); err != nil {
		logging.WarnWithContext(s.logger, "dataset directory sync failed", "dataset_dir_sync_failed",
			logging.String("dir", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "rename may not survive a crash"),
		)
	}

	s.logger.Info("dataset written",
		logging.String("path", s.Path),
		logging.Int("records", len(ds.Records)),
		logging.String(logging.FieldEventType, "dataset_written"),
	)
	return nil
}

func (s *Store) backup() error {
	err := fileutil.CopyFile(s.Path, s.BackupPath())
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "dataset", "backup", "copy current dataset", err)
}
