package overrides_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/overrides"
	"gamecatalog/internal/services"
)

func intPtr(v int) *int { return &v }

func TestDecodeGroupsRowsByIdentifier(t *testing.T) {
	payload := `[
		{"bgg_id": "230802.0", "name_zh": "花磚物語", "price_twd": "1,200", "stock": 3},
		{"bgg_id": 822, "name_zh": "卡卡頌", "price_twd": ""},
		{"bgg_id": 230802, "name_zh": "花磚物語 二手", "used_price_twd": 650.0, "manual_override": true},
		{"bgg_query": "Some Unknown Game"},
		{"name_zh": "nothing to resolve"}
	]`
	set, err := overrides.Decode(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if diff := cmp.Diff([]catalog.Identifier{230802, 822}, set.Order); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	want := []catalog.OverrideRow{
		{ID: 230802, NameZh: "花磚物語", Price: intPtr(1200), Stock: intPtr(3)},
		{ID: 230802, NameZh: "花磚物語 二手", UsedPrice: intPtr(650), ManualOverride: "true"},
	}
	if diff := cmp.Diff(want, set.Rows[230802]); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}
	if set.Rows[822][0].Price != nil {
		t.Fatalf("expected blank price to be absent, got %v", *set.Rows[822][0].Price)
	}
	if len(set.Unresolved) != 1 || set.Unresolved[0].Query != "Some Unknown Game" {
		t.Fatalf("unexpected unresolved rows %+v", set.Unresolved)
	}
	if set.Skipped != 1 {
		t.Fatalf("expected 1 skipped row, got %d", set.Skipped)
	}
	if set.RowCount() != 3 {
		t.Fatalf("expected 3 resolved rows, got %d", set.RowCount())
	}
}

func TestDecodeNormalizesVersionIdentifier(t *testing.T) {
	set, err := overrides.Decode(strings.NewReader(`[{"bgg_id": 1, "image_version_id": 445566.0}]`))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got := set.Rows[1][0].ImageVersionID; got != "445566" {
		t.Fatalf("expected normalized version id, got %q", got)
	}
}

func TestDecodeRejectsNestedValues(t *testing.T) {
	_, err := overrides.Decode(strings.NewReader(`[{"bgg_id": 1, "name_zh": ["a"]}]`))
	if err == nil || !strings.Contains(err.Error(), "name_zh") {
		t.Fatalf("expected field error, got %v", err)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	set, err := overrides.Decode(strings.NewReader("  \n"))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(set.Order) != 0 || set.RowCount() != 0 {
		t.Fatalf("expected empty set, got %+v", set)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := overrides.Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bgg_ids.json")
	if err := os.WriteFile(path, []byte(`{"not": "a list"}`), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}
	_, err := overrides.Load(path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGroupPreservesRowOrder(t *testing.T) {
	set := overrides.Group([]catalog.OverrideRow{
		{ID: 3, NameZh: "a"},
		{ID: 1, NameZh: "b"},
		{ID: 3, NameZh: "c"},
	})
	if diff := cmp.Diff([]catalog.Identifier{3, 1}, set.Order); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if set.Rows[3][1].NameZh != "c" {
		t.Fatalf("expected row order preserved, got %+v", set.Rows[3])
	}
}
