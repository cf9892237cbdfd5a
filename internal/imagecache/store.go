package imagecache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/fileutil"
)

// Entry is one cached version image.
type Entry struct {
	VersionID catalog.Identifier `json:"version_id"`
	ImageURL  string             `json:"image_url"`
	CachedAt  time.Time          `json:"cached_at"`
}

// Store persists cache entries.
type Store interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
}

// FileStore keeps entries in a JSON file.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads entries from disk. A missing or empty file yields no entries.
// Besides the entry list, an object mapping version ids to URLs is accepted.
func (s *FileStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '{' {
		var legacy map[string]string
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("parse cache file: %w", err)
		}
		entries := make([]Entry, 0, len(legacy))
		for key, url := range legacy {
			id, err := catalog.ParseIdentifier(key)
			if err != nil || url == "" {
				continue
			}
			entries = append(entries, Entry{VersionID: id, ImageURL: url})
		}
		sortEntries(entries)
		return entries, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	return entries, nil
}

// Save writes entries atomically via a temp file in the same directory.
func (s *FileStore) Save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	if err := fileutil.WriteAtomic(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	saves   int
	LoadErr error
	SaveErr error
}

// NewMemoryStore returns a store seeded with entries.
func NewMemoryStore(entries ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), entries...)}
}

func (s *MemoryStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return append([]Entry(nil), s.entries...), nil
}

func (s *MemoryStore) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.entries = append([]Entry(nil), entries...)
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Entries returns the last saved entries.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// sortEntries orders newest first, then by version id for determinism.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CachedAt.Equal(entries[j].CachedAt) {
			return entries[i].CachedAt.After(entries[j].CachedAt)
		}
		return entries[i].VersionID < entries[j].VersionID
	})
}
