package overrides

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
	"gamecatalog/internal/services"
)

// Set is the grouped view of override rows.
type Set struct {
	// Order lists identifiers in the order their first row appeared.
	Order []catalog.Identifier
	// Rows maps each identifier to its rows in file order.
	Rows map[catalog.Identifier][]catalog.OverrideRow
	// Unresolved holds rows carrying only a fallback query.
	Unresolved []catalog.OverrideRow
	// Skipped counts rows with neither an identifier nor a query.
	Skipped int
}

// RowCount returns the number of resolved rows.
func (s *Set) RowCount() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, rows := range s.Rows {
		total += len(rows)
	}
	return total
}

// Load reads the override file at path. A missing file returns an error
// wrapping services.ErrNotFound.
func Load(path string) (*Set, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "overrides", "load", path, err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "overrides", "load", "open overrides", err)
	}
	defer file.Close()
	set, err := Decode(file)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "overrides", "load", path, err)
	}
	return set, nil
}

// Decode parses a JSON list of override rows.
func Decode(r io.Reader) (*Set, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	set := &Set{Rows: make(map[catalog.Identifier][]catalog.OverrideRow)}
	if len(bytes.TrimSpace(payload)) == 0 {
		return set, nil
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	for index, fields := range raw {
		row, err := decodeRow(fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", index+1, err)
		}
		set.add(row)
	}
	return set, nil
}

// Group builds a set from rows already in memory.
func Group(rows []catalog.OverrideRow) *Set {
	set := &Set{Rows: make(map[catalog.Identifier][]catalog.OverrideRow)}
	for _, row := range rows {
		set.add(row)
	}
	return set
}

func (s *Set) add(row catalog.OverrideRow) {
	switch {
	case row.ID.Valid():
		if _, ok := s.Rows[row.ID]; !ok {
			s.Order = append(s.Order, row.ID)
		}
		s.Rows[row.ID] = append(s.Rows[row.ID], row)
	case row.Key() != "":
		s.Unresolved = append(s.Unresolved, row)
	default:
		s.Skipped++
	}
}

func decodeRow(fields map[string]json.RawMessage) (catalog.OverrideRow, error) {
	var row catalog.OverrideRow
	var err error
	str := func(key string) string {
		if err != nil {
			return ""
		}
		var value string
		value, err = scalarString(fields[key])
		if err != nil {
			err = fmt.Errorf("%s: %w", key, err)
		}
		return value
	}
	num := func(key string) *int {
		value := str(key)
		if err != nil {
			return nil
		}
		return bgg.LooseInt(value)
	}

	if idText := str("bgg_id"); idText != "" && err == nil {
		id, parseErr := catalog.ParseIdentifier(idText)
		if parseErr == nil {
			row.ID = id
		}
	}
	row.Query = str("bgg_query")
	row.NameZh = str("name_zh")
	row.NameEnOverride = str("name_en_override")
	row.AliasZh = str("alias_zh")
	row.CategoryZh = str("category_zh")
	row.PriceMSRP = num("price_msrp_twd")
	row.Price = num("price_twd")
	row.UsedPrice = num("used_price_twd")
	row.PriceNote = str("price_note")
	row.UsedNote = str("used_note")
	row.Stock = num("stock")
	row.Description = str("description")
	row.ImageOverride = str("image_override")
	row.ImageVersionID = str("image_version_id")
	row.LinkOverride = str("link_override")
	row.BGGURLOverride = str("bgg_url_override")
	row.ManualOverride = str("manual_override")
	if err != nil {
		return catalog.OverrideRow{}, err
	}
	if row.ImageVersionID != "" {
		if id, parseErr := catalog.ParseIdentifier(row.ImageVersionID); parseErr == nil {
			row.ImageVersionID = id.String()
		}
	}
	return row, nil
}

// scalarString renders a JSON scalar as trimmed text. Null and absent values
// are empty; false is empty so boolean flags behave like blank cells.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case 't':
		return "true", nil
	case 'f':
		return "", nil
	case '{', '[':
		return "", errors.New("expected a scalar value")
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return "", fmt.Errorf("invalid number %s", raw)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
}
