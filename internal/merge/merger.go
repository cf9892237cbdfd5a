package merge

import (
	"log/slog"
	"slices"
	"strings"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/logging"
)

// BGGURLPrefix is joined with an identifier to form the canonical page link.
const BGGURLPrefix = "https://boardgamegeek.com/boardgame/"

// Merger builds MergedRecords. It holds no per-run state, so repeated merges
// of the same inputs produce identical records.
type Merger struct {
	fields        FieldSet
	versionImages map[catalog.Identifier]string
	logger        *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithFields restricts the override columns applied.
func WithFields(fields FieldSet) Option {
	return func(m *Merger) {
		m.fields = fields
	}
}

// WithVersionImages supplies resolved version images keyed by version id.
func WithVersionImages(images map[catalog.Identifier]string) Option {
	return func(m *Merger) {
		m.versionImages = images
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// New constructs a Merger that applies every override column by default.
func New(opts ...Option) *Merger {
	m := &Merger{fields: AllFields()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "merge")
	return m
}

// Merge fans sources out across override rows. Records follow the first-seen
// order of identifiers in order; identifiers present only in sources or
// overrides follow in ascending order. Within an identifier, records follow
// row order. Identifiers in neither map produce nothing.
func (m *Merger) Merge(order []catalog.Identifier, sources map[catalog.Identifier]catalog.SourceRecord, overrides map[catalog.Identifier][]catalog.OverrideRow) []catalog.MergedRecord {
	sequence := catalog.NewIdentifierSet(order...)
	var leftovers []catalog.Identifier
	for id := range sources {
		if !sequence.Contains(id) {
			leftovers = append(leftovers, id)
		}
	}
	for id := range overrides {
		if !sequence.Contains(id) && !slices.Contains(leftovers, id) {
			leftovers = append(leftovers, id)
		}
	}
	slices.Sort(leftovers)
	for _, id := range leftovers {
		sequence.Add(id)
	}

	records := make([]catalog.MergedRecord, 0, sequence.Len())
	fanOut := 0
	for _, id := range sequence.Slice() {
		source, fetched := sources[id]
		rows, hasRows := overrides[id]
		if !fetched && !hasRows {
			continue
		}
		if len(rows) == 0 {
			rows = []catalog.OverrideRow{{}}
		}
		if len(rows) > 1 {
			fanOut++
		}
		var src *catalog.SourceRecord
		if fetched {
			src = &source
		}
		for _, row := range rows {
			records = append(records, m.build(id, src, row))
		}
	}

	m.logger.Debug("merged records",
		logging.Int("identifiers", sequence.Len()),
		logging.Int("records", len(records)),
		logging.Int("fan_out_identifiers", fanOut))
	return records
}

// MergeOne builds the record for a single source/override pair.
func (m *Merger) MergeOne(id catalog.Identifier, source *catalog.SourceRecord, row catalog.OverrideRow) catalog.MergedRecord {
	return m.build(id, source, row)
}

func (m *Merger) build(id catalog.Identifier, source *catalog.SourceRecord, row catalog.OverrideRow) catalog.MergedRecord {
	record := baseRecord(id, source)
	m.fields.apply(&record, row)
	record.ManualOverride = strings.TrimSpace(row.ManualOverride)
	m.enrich(&record)
	return record
}

func baseRecord(id catalog.Identifier, source *catalog.SourceRecord) catalog.MergedRecord {
	record := catalog.MergedRecord{ID: id}
	if source == nil {
		return record
	}
	record.Fetched = true
	record.Name = source.Name
	record.NameEn = source.Name
	record.AlternateNames = slices.Clone(source.AlternateNames)
	record.Description = source.Description
	record.Year = cloneInt(source.Year)
	record.MinPlayers = cloneInt(source.MinPlayers)
	record.MaxPlayers = cloneInt(source.MaxPlayers)
	record.MinPlaytime = cloneInt(source.MinPlaytime)
	record.MaxPlaytime = cloneInt(source.MaxPlaytime)
	record.MinAge = cloneInt(source.MinAge)
	record.Weight = cloneFloat(source.Weight)
	record.RatingAvg = cloneFloat(source.RatingAvg)
	record.BayesAvg = cloneFloat(source.BayesAvg)
	record.UsersRated = cloneInt(source.UsersRated)
	record.RankOverall = cloneInt(source.RankOverall)
	record.Categories = slices.Clone(source.Categories)
	record.Mechanisms = slices.Clone(source.Mechanisms)
	record.ImageURL = firstNonEmpty(source.Image, source.Thumbnail)
	record.ThumbURL = firstNonEmpty(source.Thumbnail, source.Image)
	for _, c := range source.Comments {
		c.Rating = cloneFloat(c.Rating)
		record.Comments = append(record.Comments, c)
	}
	return record
}

// enrich derives fields that depend on the merged values. Records carrying an
// image override or a manual-override flag keep their image untouched.
func (m *Merger) enrich(record *catalog.MergedRecord) {
	if !record.ImageLocked && record.ManualOverride == "" && record.ImageVersionID != "" {
		if versionID, err := catalog.ParseIdentifier(record.ImageVersionID); err == nil {
			if url, ok := m.versionImages[versionID]; ok && url != "" {
				record.ImageURL = url
				record.ThumbURL = url
				record.ImageVersionUsed = int64(versionID)
			}
		}
	}
	if record.BGGURL == "" && record.ID.Valid() {
		record.BGGURL = BGGURLPrefix + record.ID.String()
	}
	record.Categories = dedupe(record.Categories)
	record.Mechanisms = dedupe(record.Mechanisms)
	record.Category = record.CategoryZh
	if record.Category == "" && len(record.Categories) > 0 {
		record.Category = record.Categories[0]
	}
	record.SearchKeywords = keywords(record)
}

func keywords(record *catalog.MergedRecord) []string {
	var out []string
	add := func(values ...string) {
		out = append(out, values...)
	}
	add(record.NameZh)
	add(splitAliases(record.AliasZh)...)
	add(record.NameEn, record.Name, record.CategoryZh)
	add(record.Categories...)
	add(record.Mechanisms...)
	return dedupe(out)
}

func splitAliases(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		switch r {
		case ',', '，', '、', ';', '；', '/', '|':
			return true
		}
		return false
	})
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
