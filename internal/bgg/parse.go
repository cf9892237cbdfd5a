package bgg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"
	"strings"

	"gamecatalog/internal/catalog"
)

// ErrMalformed marks payloads that are not a usable items document.
var ErrMalformed = errors.New("malformed bgg payload")

// ParseOptions controls optional parts of the parsed record.
type ParseOptions struct {
	// CommentsTop limits retained comments; zero drops comments entirely.
	CommentsTop int
}

type itemsDoc struct {
	XMLName xml.Name  `xml:"items"`
	Items   []itemDoc `xml:"item"`
}

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type nameDoc struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type linkDoc struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type rankDoc struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type commentDoc struct {
	Username string `xml:"username,attr"`
	Rating   string `xml:"rating,attr"`
	Value    string `xml:"value,attr"`
}

type itemDoc struct {
	Type        string       `xml:"type,attr"`
	ID          string       `xml:"id,attr"`
	Thumbnail   string       `xml:"thumbnail"`
	Image       string       `xml:"image"`
	Names       []nameDoc    `xml:"name"`
	Description string       `xml:"description"`
	Year        valueAttr    `xml:"yearpublished"`
	MinPlayers  valueAttr    `xml:"minplayers"`
	MaxPlayers  valueAttr    `xml:"maxplayers"`
	PlayingTime valueAttr    `xml:"playingtime"`
	MinPlaytime valueAttr    `xml:"minplaytime"`
	MaxPlaytime valueAttr    `xml:"maxplaytime"`
	MinAge      valueAttr    `xml:"minage"`
	Links       []linkDoc    `xml:"link"`
	UsersRated  valueAttr    `xml:"statistics>ratings>usersrated"`
	Average     valueAttr    `xml:"statistics>ratings>average"`
	BayesAvg    valueAttr    `xml:"statistics>ratings>bayesaverage"`
	Weight      valueAttr    `xml:"statistics>ratings>averageweight"`
	Ranks       []rankDoc    `xml:"statistics>ratings>ranks>rank"`
	Comments    []commentDoc `xml:"comments>comment"`
}

func decodeItems(body []byte) (*itemsDoc, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	var doc itemsDoc
	if err := xml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &doc, nil
}

// ParseThings returns one record per requested identifier present in body,
// in payload order. Unrequested items are ignored; duplicates keep the first.
func ParseThings(body []byte, requested []catalog.Identifier, opts ParseOptions) ([]catalog.SourceRecord, error) {
	doc, err := decodeItems(body)
	if err != nil {
		return nil, err
	}
	wanted := catalog.NewIdentifierSet(requested...)
	seen := make(map[catalog.Identifier]struct{}, len(doc.Items))
	records := make([]catalog.SourceRecord, 0, len(doc.Items))
	for _, item := range doc.Items {
		id, err := catalog.ParseIdentifier(item.ID)
		if err != nil || !wanted.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		records = append(records, item.record(id, opts))
	}
	return records, nil
}

func (item itemDoc) record(id catalog.Identifier, opts ParseOptions) catalog.SourceRecord {
	record := catalog.SourceRecord{
		ID:          id,
		Description: cleanText(item.Description),
		Year:        looseInt(item.Year.Value),
		MinPlayers:  looseInt(item.MinPlayers.Value),
		MaxPlayers:  looseInt(item.MaxPlayers.Value),
		MinPlaytime: looseInt(item.MinPlaytime.Value),
		MaxPlaytime: looseInt(item.MaxPlaytime.Value),
		MinAge:      looseInt(item.MinAge.Value),
		Weight:      looseFloat(item.Weight.Value),
		RatingAvg:   looseFloat(item.Average.Value),
		BayesAvg:    looseFloat(item.BayesAvg.Value),
		UsersRated:  looseInt(item.UsersRated.Value),
		Image:       strings.TrimSpace(item.Image),
		Thumbnail:   strings.TrimSpace(item.Thumbnail),
	}
	if record.MinPlaytime == nil {
		record.MinPlaytime = looseInt(item.PlayingTime.Value)
	}
	if record.MaxPlaytime == nil {
		record.MaxPlaytime = looseInt(item.PlayingTime.Value)
	}

	for _, name := range item.Names {
		value := strings.TrimSpace(name.Value)
		if value == "" {
			continue
		}
		if name.Type == "primary" && record.Name == "" {
			record.Name = value
			continue
		}
		record.AlternateNames = appendUnique(record.AlternateNames, value)
	}
	if record.Name == "" && len(record.AlternateNames) > 0 {
		record.Name = record.AlternateNames[0]
		record.AlternateNames = record.AlternateNames[1:]
	}
	if len(record.AlternateNames) == 0 {
		record.AlternateNames = nil
	}

	for _, link := range item.Links {
		value := strings.TrimSpace(link.Value)
		switch link.Type {
		case "boardgamecategory":
			record.Categories = appendUnique(record.Categories, value)
		case "boardgamemechanic":
			record.Mechanisms = appendUnique(record.Mechanisms, value)
		}
	}

	for _, rank := range item.Ranks {
		if rank.Name == "boardgame" {
			record.RankOverall = looseInt(rank.Value)
			break
		}
	}

	if opts.CommentsTop > 0 {
		record.Comments = topComments(item.Comments, opts.CommentsTop)
	}
	return record
}

// ParseVersionImages maps each requested version identifier to its image URL,
// falling back to the thumbnail. Versions without imagery are omitted.
func ParseVersionImages(body []byte, requested []catalog.Identifier) (map[catalog.Identifier]string, error) {
	doc, err := decodeItems(body)
	if err != nil {
		return nil, err
	}
	wanted := catalog.NewIdentifierSet(requested...)
	images := make(map[catalog.Identifier]string, len(doc.Items))
	for _, item := range doc.Items {
		id, err := catalog.ParseIdentifier(item.ID)
		if err != nil || !wanted.Contains(id) {
			continue
		}
		if _, dup := images[id]; dup {
			continue
		}
		image := strings.TrimSpace(item.Image)
		if image == "" {
			image = strings.TrimSpace(item.Thumbnail)
		}
		if image != "" {
			images[id] = image
		}
	}
	return images, nil
}

func topComments(comments []commentDoc, limit int) []catalog.Comment {
	out := make([]catalog.Comment, 0, len(comments))
	for _, c := range comments {
		text := strings.TrimSpace(c.Value)
		if text == "" {
			continue
		}
		out = append(out, catalog.Comment{
			Username: strings.TrimSpace(c.Username),
			Rating:   looseFloat(c.Rating),
			Text:     text,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Rating != nil) != (b.Rating != nil) {
			return a.Rating != nil
		}
		if a.Rating != nil && *a.Rating != *b.Rating {
			return *a.Rating > *b.Rating
		}
		return len([]rune(a.Text)) > len([]rune(b.Text))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(value))
}

func appendUnique(values []string, value string) []string {
	if value == "" {
		return values
	}
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

var absentSentinels = map[string]struct{}{
	"":           {},
	"n/a":        {},
	"na":         {},
	"none":       {},
	"null":       {},
	"nan":        {},
	"not ranked": {},
}

func normalizeNumber(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if _, ok := absentSentinels[strings.ToLower(cleaned)]; ok {
		return 0, false
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// LooseInt coerces upstream numeric text to an int, treating sentinels and
// unparseable values as absent.
func LooseInt(value string) *int {
	return looseInt(value)
}

// LooseFloat is the float variant of LooseInt.
func LooseFloat(value string) *float64 {
	return looseFloat(value)
}

func looseInt(value string) *int {
	f, ok := normalizeNumber(value)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func looseFloat(value string) *float64 {
	f, ok := normalizeNumber(value)
	if !ok {
		return nil
	}
	return &f
}
