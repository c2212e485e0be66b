// Package watchlist resolves the saved items of a named list.
package watchlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/catalog"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

// DefaultListName is the list the catalog creates for every account.
const DefaultListName = "Merkliste"

// ErrListNotFound indicates that no list with the requested name exists.
var ErrListNotFound = errors.New("list not found")

// WatchlistError reports a failure to resolve a list.
type WatchlistError struct {
	List string
	Err  error
}

// Error implements the error interface.
func (e *WatchlistError) Error() string {
	return fmt.Sprintf("watchlist %q: %v", e.List, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WatchlistError) Unwrap() error {
	return e.Err
}

// ListSource returns all lists owned by a session.
type ListSource interface {
	Lists(ctx context.Context, sess *session.Session) ([]catalog.RawList, error)
}

// Resolver maps a named list to its items.
type Resolver struct {
	source ListSource
	logger zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(source ListSource) *Resolver {
	return &Resolver{
		source: source,
		logger: logging.NewLogger("watchlist-resolver"),
	}
}

// Resolve returns the items of the list named listName (exact, case-sensitive
// match). A present but empty list yields an empty slice.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, listName string) ([]media.ListItem, error) {
	lists, err := r.source.Lists(ctx, sess)
	if err != nil {
		return nil, &WatchlistError{List: listName, Err: fmt.Errorf("fetch lists: %w", err)}
	}

	r.logger.Debug().Int("lists", len(lists)).Str("list", listName).Msg("Selecting list")

	for _, l := range lists {
		if l.ListName != listName {
			continue
		}

		items := make([]media.ListItem, 0, len(l.Items))
		for i, raw := range l.Items {
			item, err := raw.ToListItem(listName)
			if err != nil {
				return nil, &WatchlistError{List: listName, Err: fmt.Errorf("entry %d: %w", i, err)}
			}
			items = append(items, item)
		}

		r.logger.Info().Str("list", listName).Int("items", len(items)).Msg("Resolved watchlist")
		return items, nil
	}

	names := make([]string, 0, len(lists))
	for _, l := range lists {
		names = append(names, l.ListName)
	}
	r.logger.Warn().Str("list", listName).Strs("available", names).Msg("List not found")

	return nil, &WatchlistError{List: listName, Err: ErrListNotFound}
}
