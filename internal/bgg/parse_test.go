package bgg_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
)

const thingsPayload = `<?xml version="1.0" encoding="utf-8"?>
<items termsofuse="https://boardgamegeek.com/xmlapi/termsofuse">
  <item type="boardgame" id="13">
    <thumbnail>https://cf.geekdo-images.com/catan_t.jpg</thumbnail>
    <image>https://cf.geekdo-images.com/catan.jpg</image>
    <name type="primary" sortindex="1" value="CATAN"/>
    <name type="alternate" sortindex="1" value="Die Siedler von Catan"/>
    <name type="alternate" sortindex="1" value="Die Siedler von Catan"/>
    <description>Trade &amp;amp; build&amp;#10;settlements.</description>
    <yearpublished value="1995"/>
    <minplayers value="3"/>
    <maxplayers value="4"/>
    <playingtime value="120"/>
    <minplaytime value="60"/>
    <maxplaytime value="120"/>
    <minage value="10"/>
    <link type="boardgamecategory" id="1026" value="Negotiation"/>
    <link type="boardgamecategory" id="1026" value="Negotiation"/>
    <link type="boardgamemechanic" id="2072" value="Dice Rolling"/>
    <link type="boardgamepublisher" id="37" value="KOSMOS"/>
    <statistics page="1">
      <ratings>
        <usersrated value="1,200"/>
        <average value="7.1"/>
        <bayesaverage value="6.9"/>
        <ranks>
          <rank type="family" id="5497" name="strategygames" friendlyname="Strategy Game Rank" value="400"/>
          <rank type="subtype" id="1" name="boardgame" friendlyname="Board Game Rank" value="512"/>
        </ranks>
        <averageweight value="2.3"/>
      </ratings>
    </statistics>
    <comments page="1" totalitems="4">
      <comment username="short" rating="9" value="ok"/>
      <comment username="long" rating="9" value="a much longer comment"/>
      <comment username="unrated" rating="N/A" value="the longest comment of them all by far"/>
      <comment username="top" rating="10" value="best"/>
    </comments>
  </item>
  <item type="boardgame" id="99">
    <name type="primary" value="Unrequested"/>
  </item>
  <item type="boardgame" id="42">
    <name type="alternate" value="Only Alternate"/>
    <yearpublished value=""/>
    <minplayers value="N/A"/>
    <playingtime value="45"/>
    <statistics page="1">
      <ratings>
        <usersrated value="abc"/>
        <ranks><rank type="subtype" name="boardgame" value="Not Ranked"/></ranks>
      </ratings>
    </statistics>
  </item>
  <item type="boardgame" id="13">
    <name type="primary" value="Duplicate"/>
  </item>
</items>`

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestParseThingsExtractsRequestedRecords(t *testing.T) {
	records, err := bgg.ParseThings([]byte(thingsPayload), []catalog.Identifier{13, 42, 77}, bgg.ParseOptions{CommentsTop: 3})
	if err != nil {
		t.Fatalf("ParseThings returned error: %v", err)
	}

	want := []catalog.SourceRecord{
		{
			ID:             13,
			Name:           "CATAN",
			AlternateNames: []string{"Die Siedler von Catan"},
			Description:    "Trade & build\nsettlements.",
			Year:           intPtr(1995),
			MinPlayers:     intPtr(3),
			MaxPlayers:     intPtr(4),
			MinPlaytime:    intPtr(60),
			MaxPlaytime:    intPtr(120),
			MinAge:         intPtr(10),
			Weight:         floatPtr(2.3),
			RatingAvg:      floatPtr(7.1),
			BayesAvg:       floatPtr(6.9),
			UsersRated:     intPtr(1200),
			RankOverall:    intPtr(512),
			Categories:     []string{"Negotiation"},
			Mechanisms:     []string{"Dice Rolling"},
			Image:          "https://cf.geekdo-images.com/catan.jpg",
			Thumbnail:      "https://cf.geekdo-images.com/catan_t.jpg",
			Comments: []catalog.Comment{
				{Username: "top", Rating: floatPtr(10), Text: "best"},
				{Username: "long", Rating: floatPtr(9), Text: "a much longer comment"},
				{Username: "short", Rating: floatPtr(9), Text: "ok"},
			},
		},
		{
			ID:          42,
			Name:        "Only Alternate",
			MinPlaytime: intPtr(45),
			MaxPlaytime: intPtr(45),
		},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestParseThingsIsDeterministic(t *testing.T) {
	ids := []catalog.Identifier{13, 42}
	first, err := bgg.ParseThings([]byte(thingsPayload), ids, bgg.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseThings returned error: %v", err)
	}
	second, err := bgg.ParseThings([]byte(thingsPayload), ids, bgg.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseThings returned error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated parse differs (-first +second):\n%s", diff)
	}
	if first[0].Comments != nil {
		t.Fatal("expected comments dropped without CommentsTop")
	}
}

func TestParseThingsMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":     "   ",
		"truncated": `<items><item id="1"><name value="x"/>`,
		"error doc": `<error><message>Rate limit exceeded.</message></error>`,
		"not xml":   `{"items": []}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := bgg.ParseThings([]byte(body), []catalog.Identifier{1}, bgg.ParseOptions{})
			if !errors.Is(err, bgg.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseThingsEmptyItemsIsNotAnError(t *testing.T) {
	records, err := bgg.ParseThings([]byte(`<items termsofuse="x"></items>`), []catalog.Identifier{1, 2}, bgg.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseThings returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestParseVersionImages(t *testing.T) {
	body := `<items>
  <item type="boardgameversion" id="500"><image> https://img/500.png </image><thumbnail>https://img/500_t.png</thumbnail></item>
  <item type="boardgameversion" id="501"><thumbnail>https://img/501_t.png</thumbnail></item>
  <item type="boardgameversion" id="502"></item>
  <item type="boardgameversion" id="999"><image>https://img/999.png</image></item>
</items>`
	images, err := bgg.ParseVersionImages([]byte(body), []catalog.Identifier{500, 501, 502})
	if err != nil {
		t.Fatalf("ParseVersionImages returned error: %v", err)
	}
	want := map[catalog.Identifier]string{
		500: "https://img/500.png",
		501: "https://img/501_t.png",
	}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Fatalf("unexpected images (-want +got):\n%s", diff)
	}
}

func TestLooseNumbers(t *testing.T) {
	intCases := map[string]*int{
		"1,200":      intPtr(1200),
		" 42 ":       intPtr(42),
		"7.9":        intPtr(7),
		"N/A":        nil,
		"Not Ranked": nil,
		"none":       nil,
		"":           nil,
		"abc":        nil,
	}
	for input, want := range intCases {
		if diff := cmp.Diff(want, bgg.LooseInt(input)); diff != "" {
			t.Errorf("LooseInt(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
	if diff := cmp.Diff(floatPtr(3.25), bgg.LooseFloat("3.25")); diff != "" {
		t.Errorf("LooseFloat mismatch (-want +got):\n%s", diff)
	}
	if got := bgg.LooseFloat("nan"); got != nil {
		t.Errorf("expected nan to be absent, got %v", *got)
	}
}
