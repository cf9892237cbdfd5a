package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier names one catalog entity in the upstream service.
type Identifier int64

// ParseIdentifier parses a positive decimal identifier. Values such as "123.0"
// produced by spreadsheet exports are accepted.
func ParseIdentifier(value string) (Identifier, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("identifier: empty value")
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return checkIdentifier(n, value)
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("identifier: invalid value %q", value)
	}
	return checkIdentifier(int64(f), value)
}

func checkIdentifier(n int64, raw string) (Identifier, error) {
	if n <= 0 {
		return 0, fmt.Errorf("identifier: %q must be positive", raw)
	}
	return Identifier(n), nil
}

// Valid reports whether the identifier is positive.
func (id Identifier) Valid() bool {
	return id > 0
}

func (id Identifier) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// JoinIdentifiers renders identifiers comma-separated, the upstream request format.
func JoinIdentifiers(ids []Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// IdentifierSet is an ordered, deduplicated collection of identifiers.
// The zero value is ready to use.
type IdentifierSet struct {
	order []Identifier
	seen  map[Identifier]struct{}
}

// NewIdentifierSet returns a set seeded with ids in first-appearance order.
func NewIdentifierSet(ids ...Identifier) *IdentifierSet {
	set := &IdentifierSet{}
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add appends id unless it is already present or invalid. It reports whether
// the set changed.
func (s *IdentifierSet) Add(id Identifier) bool {
	if !id.Valid() {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[Identifier]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Contains reports whether id is in the set.
func (s *IdentifierSet) Contains(id Identifier) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of identifiers.
func (s *IdentifierSet) Len() int {
	return len(s.order)
}

// Slice returns a copy of the identifiers in first-appearance order.
func (s *IdentifierSet) Slice() []Identifier {
	return append([]Identifier(nil), s.order...)
}

// Chunks partitions the set into consecutive slices of at most n identifiers.
func (s *IdentifierSet) Chunks(n int) [][]Identifier {
	return Chunk(s.order, n)
}

// Chunk partitions ids into consecutive slices of at most n entries. A
// non-positive n yields a single chunk.
func Chunk(ids []Identifier, n int) [][]Identifier {
	if len(ids) == 0 {
		return nil
	}
	if n <= 0 || n >= len(ids) {
		return [][]Identifier{append([]Identifier(nil), ids...)}
	}
	chunks := make([][]Identifier, 0, (len(ids)+n-1)/n)
	for start := 0; start < len(ids); start += n {
		end := min(start+n, len(ids))
		chunks = append(chunks, append([]Identifier(nil), ids[start:end]...))
	}
	return chunks
}
