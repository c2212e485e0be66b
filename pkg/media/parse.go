package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Metadata keys read from list entries and item records.
const (
	keyTitle     = "title"
	keyAuthor    = "author"
	keySignature = "signature"
	keyGenre     = "genre"
)

// ErrMissingID indicates a record without identifier.
var ErrMissingID = errors.New("missing id")

// MetaEntry is a key/value pair from a metadata array.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metadata []MetaEntry

func (m metadata) get(key string) string {
	for _, e := range m {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

// RawListEntry is an entry of a named list on the list endpoint.
type RawListEntry struct {
	ID                 string      `json:"id"`
	AdditionalMetaData []MetaEntry `json:"additionalMetaData"`
}

// ToListItem converts the raw entry; source names the list it came from.
func (r RawListEntry) ToListItem(source string) (ListItem, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return ListItem{}, ErrMissingID
	}
	meta := metadata(r.AdditionalMetaData)
	return ListItem{
		ID:     id,
		Source: source,
		Title:  meta.get(keyTitle),
		Author: meta.get(keyAuthor),
	}, nil
}

type rawCopy struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Available bool   `json:"available"`
	Shelfmark string `json:"shelfmark"`
}

type rawItem struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Author   string      `json:"author"`
	Format   string      `json:"format"`
	Metadata []MetaEntry `json:"metadata"`
	Copies   []rawCopy   `json:"copies"`
}

// ParseItem decodes an item endpoint body.
func ParseItem(body []byte) (Item, error) {
	var raw rawItem
	if err := json.Unmarshal(body, &raw); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		return Item{}, ErrMissingID
	}

	meta := metadata(raw.Metadata)
	item := Item{
		ID:        raw.ID,
		Title:     strings.TrimSpace(raw.Title),
		Author:    strings.TrimSpace(raw.Author),
		Format:    strings.TrimSpace(raw.Format),
		Genre:     strings.TrimSpace(meta.get(keyGenre)),
		Signature: strings.TrimSpace(meta.get(keySignature)),
	}

	avail := make(Availabilities)
	for i, c := range raw.Copies {
		name := strings.TrimSpace(c.Location.Name)
		if name == "" {
			return Item{}, fmt.Errorf("copy %d of item %s has no location", i, raw.ID)
		}
		a, ok := avail[name]
		if !ok {
			a = Availability{Location: name, ShelfLabel: strings.TrimSpace(c.Shelfmark)}
			if a.ShelfLabel == "" {
				a.ShelfLabel = item.CleanSignature()
			}
		}
		a.Total++
		if c.Available {
			a.Available++
		}
		avail[name] = a
	}
	item.Availabilities = avail

	return item, nil
}
