package merge

import (
	"fmt"
	"sort"
	"strings"

	"gamecatalog/internal/catalog"
)

type field struct {
	name  string
	apply func(dst *catalog.MergedRecord, row catalog.OverrideRow)
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setInt(dst **int, value *int) {
	if value != nil {
		v := *value
		*dst = &v
	}
}

var knownFields = []field{
	{"name_zh", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.NameZh, r.NameZh) }},
	{"name_en_override", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.NameEn, r.NameEnOverride) }},
	{"alias_zh", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.AliasZh, r.AliasZh) }},
	{"category_zh", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.CategoryZh, r.CategoryZh) }},
	{"price_msrp_twd", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setInt(&d.PriceMSRP, r.PriceMSRP) }},
	{"price_twd", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setInt(&d.Price, r.Price) }},
	{"used_price_twd", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setInt(&d.UsedPrice, r.UsedPrice) }},
	{"price_note", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.PriceNote, r.PriceNote) }},
	{"used_note", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.UsedNote, r.UsedNote) }},
	{"stock", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setInt(&d.Stock, r.Stock) }},
	{"description", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.Description, r.Description) }},
	{"image_override", func(d *catalog.MergedRecord, r catalog.OverrideRow) {
		if !r.HasImageOverride() {
			return
		}
		image := strings.TrimSpace(r.ImageOverride)
		d.ImageOverride = image
		d.ImageURL = image
		d.ThumbURL = image
		d.ImageLocked = true
	}},
	{"image_version_id", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.ImageVersionID, r.ImageVersionID) }},
	{"link_override", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.LinkOverride, r.LinkOverride) }},
	{"bgg_url_override", func(d *catalog.MergedRecord, r catalog.OverrideRow) { setString(&d.BGGURL, r.BGGURLOverride) }},
}

// FieldNames returns every override column the merger understands, in
// application order.
func FieldNames() []string {
	names := make([]string, len(knownFields))
	for i, f := range knownFields {
		names[i] = f.name
	}
	return names
}

// FieldSet selects which override columns replace upstream values.
type FieldSet struct {
	fields []field
}

// AllFields selects every known column.
func AllFields() FieldSet {
	return FieldSet{fields: knownFields}
}

// NewFieldSet selects the named columns. An empty list selects every column;
// unknown names are rejected.
func NewFieldSet(names []string) (FieldSet, error) {
	if len(names) == 0 {
		return AllFields(), nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		wanted[name] = struct{}{}
	}
	var unknown []string
	for name := range wanted {
		if !isKnown(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return FieldSet{}, fmt.Errorf("unknown override fields: %s (known: %s)", strings.Join(unknown, ", "), strings.Join(FieldNames(), ", "))
	}
	selected := make([]field, 0, len(wanted))
	for _, f := range knownFields {
		if _, ok := wanted[f.name]; ok {
			selected = append(selected, f)
		}
	}
	return FieldSet{fields: selected}, nil
}

// Names returns the selected column names.
func (s FieldSet) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Has reports whether the set includes the named column.
func (s FieldSet) Has(name string) bool {
	for _, f := range s.fields {
		if f.name == name {
			return true
		}
	}
	return false
}

func (s FieldSet) apply(dst *catalog.MergedRecord, row catalog.OverrideRow) {
	for _, f := range s.fields {
		f.apply(dst, row)
	}
}

func isKnown(name string) bool {
	for _, f := range knownFields {
		if f.name == name {
			return true
		}
	}
	return false
}
