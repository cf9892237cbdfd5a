package catalog

import (
	"strings"

	"golang.org/x/text/cases"
)

// OverrideRow is one locally curated row. Several rows may share an
// identifier; each yields its own MergedRecord.
type OverrideRow struct {
	ID             Identifier `json:"bgg_id,omitempty"`
	Query          string     `json:"bgg_query,omitempty"`
	NameZh         string     `json:"name_zh,omitempty"`
	NameEnOverride string     `json:"name_en_override,omitempty"`
	AliasZh        string     `json:"alias_zh,omitempty"`
	CategoryZh     string     `json:"category_zh,omitempty"`
	PriceMSRP      *int       `json:"price_msrp_twd,omitempty"`
	Price          *int       `json:"price_twd,omitempty"`
	UsedPrice      *int       `json:"used_price_twd,omitempty"`
	PriceNote      string     `json:"price_note,omitempty"`
	UsedNote       string     `json:"used_note,omitempty"`
	Stock          *int       `json:"stock,omitempty"`
	Description    string     `json:"description,omitempty"`
	ImageOverride  string     `json:"image_override,omitempty"`
	ImageVersionID string     `json:"image_version_id,omitempty"`
	LinkOverride   string     `json:"link_override,omitempty"`
	BGGURLOverride string     `json:"bgg_url_override,omitempty"`
	ManualOverride string     `json:"manual_override,omitempty"`
}

// Key returns the grouping key of the row: the identifier when known,
// otherwise the case-folded fallback query prefixed with "q:".
func (r OverrideRow) Key() string {
	if r.ID.Valid() {
		return r.ID.String()
	}
	query := strings.Join(strings.Fields(r.Query), " ")
	if query == "" {
		return ""
	}
	return "q:" + cases.Fold().String(query)
}

// HasImageOverride reports whether the row pins its own image.
func (r OverrideRow) HasImageOverride() bool {
	return strings.TrimSpace(r.ImageOverride) != ""
}

// IsManual reports whether the row is flagged as manually maintained.
func (r OverrideRow) IsManual() bool {
	return strings.TrimSpace(r.ManualOverride) != ""
}

// Comment is one user comment attached to an upstream entry.
type Comment struct {
	Username string   `json:"username,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Text     string   `json:"text"`
}

// SourceRecord is the parsed upstream entry for one identifier. Absent
// numeric values are nil.
type SourceRecord struct {
	ID             Identifier `json:"bgg_id"`
	Name           string     `json:"name"`
	AlternateNames []string   `json:"alternate_names,omitempty"`
	Description    string     `json:"description,omitempty"`
	Year           *int       `json:"year,omitempty"`
	MinPlayers     *int       `json:"min_players,omitempty"`
	MaxPlayers     *int       `json:"max_players,omitempty"`
	MinPlaytime    *int       `json:"min_playtime,omitempty"`
	MaxPlaytime    *int       `json:"max_playtime,omitempty"`
	MinAge         *int       `json:"min_age,omitempty"`
	Weight         *float64   `json:"weight,omitempty"`
	RatingAvg      *float64   `json:"rating_avg,omitempty"`
	BayesAvg       *float64   `json:"bayes_avg,omitempty"`
	UsersRated     *int       `json:"users_rated,omitempty"`
	RankOverall    *int       `json:"rank_overall,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Mechanisms     []string   `json:"mechanisms,omitempty"`
	Image          string     `json:"image,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
	Comments       []Comment  `json:"comments,omitempty"`
}

// MergedRecord is the published unit: one SourceRecord combined with one
// override row.
type MergedRecord struct {
	ID             Identifier `json:"bgg_id"`
	Name           string     `json:"name,omitempty"`
	NameEn         string     `json:"name_en,omitempty"`
	NameZh         string     `json:"name_zh,omitempty"`
	AliasZh        string     `json:"alias_zh,omitempty"`
	AlternateNames []string   `json:"alternate_names,omitempty"`
	Description    string     `json:"description,omitempty"`
	Year           *int       `json:"year,omitempty"`
	MinPlayers     *int       `json:"min_players,omitempty"`
	MaxPlayers     *int       `json:"max_players,omitempty"`
	MinPlaytime    *int       `json:"min_playtime,omitempty"`
	MaxPlaytime    *int       `json:"max_playtime,omitempty"`
	MinAge         *int       `json:"min_age,omitempty"`
	Weight         *float64   `json:"weight,omitempty"`
	RatingAvg      *float64   `json:"rating_avg,omitempty"`
	BayesAvg       *float64   `json:"bayes_avg,omitempty"`
	UsersRated     *int       `json:"users_rated,omitempty"`
	RankOverall    *int       `json:"rank_overall,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Mechanisms     []string   `json:"mechanisms,omitempty"`
	CategoryZh     string     `json:"category_zh,omitempty"`
	Category       string     `json:"category,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	ThumbURL       string     `json:"thumb_url,omitempty"`
	Comments       []Comment  `json:"comments,omitempty"`

	PriceMSRP *int   `json:"price_msrp_twd,omitempty"`
	Price     *int   `json:"price_twd,omitempty"`
	UsedPrice *int   `json:"used_price_twd,omitempty"`
	PriceNote string `json:"price_note,omitempty"`
	UsedNote  string `json:"used_note,omitempty"`
	Stock     *int   `json:"stock,omitempty"`

	ImageOverride    string   `json:"image_override,omitempty"`
	ImageVersionID   string   `json:"image_version_id,omitempty"`
	ImageVersionUsed int64    `json:"image_version_used,omitempty"`
	ImageLocked      bool     `json:"image_locked,omitempty"`
	LinkOverride     string   `json:"link_override,omitempty"`
	BGGURL           string   `json:"bgg_url,omitempty"`
	ManualOverride   string   `json:"manual_override,omitempty"`
	SearchKeywords   []string `json:"search_keywords,omitempty"`

	// Fetched is false when no SourceRecord existed for the identifier.
	Fetched bool `json:"fetched"`
}
