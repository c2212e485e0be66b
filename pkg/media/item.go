// Package media holds the catalog records a watchlist run produces.
package media

import (
	"sort"
	"strings"
)

// SignaturePrefix is the branch-copy prefix the catalog puts in front of signatures.
const SignaturePrefix = "1 @ "

var (
	videoGameFormats = []string{"konsolenspiel", "videospiel", "computerspiel", "nintendo switch", "playstation", "xbox"}
	videoGameGenres  = []string{"konsolenspiel", "videospiel", "computerspiel", "spiele", "games"}
)

// ListItem is a watchlist entry as returned by the list endpoint.
type ListItem struct {
	ID     string
	Source string
	Title  string
	Author string
}

// Availability summarises the copies held at one branch.
type Availability struct {
	Location   string
	Available  int
	Total      int
	ShelfLabel string
}

// IsAvailable reports whether at least one copy can be borrowed.
func (a Availability) IsAvailable() bool {
	return a.Available > 0
}

// Availabilities maps a branch name to its availability. Built once, read-only.
type Availabilities map[string]Availability

// Locations returns the branch names in sorted order.
func (a Availabilities) Locations() []string {
	out := make([]string, 0, len(a))
	for name := range a {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AvailableLocations returns the sorted branch names with a free copy.
func (a Availabilities) AvailableLocations() []string {
	var out []string
	for _, name := range a.Locations() {
		if a[name].IsAvailable() {
			out = append(out, name)
		}
	}
	return out
}

// IsAvailable reports whether location has a free copy.
func (a Availabilities) IsAvailable(location string) bool {
	return a[location].IsAvailable()
}

// Item is a fully resolved catalog record.
type Item struct {
	ID             string
	Title          string
	Author         string
	Format         string
	Genre          string
	Signature      string
	Availabilities Availabilities
}

// CleanSignature returns the signature without the branch-copy prefix.
func (i Item) CleanSignature() string {
	return strings.TrimPrefix(i.Signature, SignaturePrefix)
}

// IsVideoGame reports whether format or genre mark the item as a game.
func (i Item) IsVideoGame() bool {
	format := strings.ToLower(i.Format)
	for _, indicator := range videoGameFormats {
		if strings.Contains(format, indicator) {
			return true
		}
	}
	genre := strings.ToLower(strings.TrimSpace(i.Genre))
	for _, indicator := range videoGameGenres {
		if genre == indicator {
			return true
		}
	}
	return false
}

// IsAvailable reports whether any branch has a free copy.
func (i Item) IsAvailable() bool {
	for _, a := range i.Availabilities {
		if a.IsAvailable() {
			return true
		}
	}
	return false
}

// SortBySignature orders items by signature (byte order), ties by id.
func SortBySignature(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Signature != items[b].Signature {
			return items[a].Signature < items[b].Signature
		}
		return items[a].ID < items[b].ID
	})
}
