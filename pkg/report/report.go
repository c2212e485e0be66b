// Package report renders fetched items: an HTML page grouped by branch and a
// console table.
package report

import (
	"context"
	"sort"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
)

// Sink consumes the final, sorted item list.
type Sink interface {
	Write(ctx context.Context, items []media.Item) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, items []media.Item) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, items []media.Item) error {
	return f(ctx, items)
}

// Multi writes to each sink in order and stops at the first error.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, items []media.Item) error {
	for _, s := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Write(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

// Entry is an item as listed under one branch.
type Entry struct {
	ID         string
	Title      string
	Author     string
	ShelfLabel string
	VideoGame  bool
}

// LocationGroup lists the items with a free copy at one branch.
type LocationGroup struct {
	Location string
	Entries  []Entry
}

// GroupByLocation collects available items per branch. Groups are sorted by
// branch name; entries keep the order of items.
func GroupByLocation(items []media.Item) []LocationGroup {
	byLocation := map[string][]Entry{}
	for _, item := range items {
		for _, loc := range item.Availabilities.AvailableLocations() {
			a := item.Availabilities[loc]
			label := a.ShelfLabel
			if label == "" {
				label = item.CleanSignature()
			}
			byLocation[loc] = append(byLocation[loc], Entry{
				ID:         item.ID,
				Title:      item.Title,
				Author:     item.Author,
				ShelfLabel: label,
				VideoGame:  item.IsVideoGame(),
			})
		}
	}

	groups := make([]LocationGroup, 0, len(byLocation))
	for loc, entries := range byLocation {
		groups = append(groups, LocationGroup{Location: loc, Entries: entries})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Location < groups[j].Location
	})
	return groups
}
