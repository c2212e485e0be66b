// Package app wires the watchlist pipeline: login, resolve, fetch, report.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/auth"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/report"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

// SessionProvider acquires an authenticated session.
type SessionProvider interface {
	Login(ctx context.Context, creds auth.Credentials) (*session.Session, error)
}

// ListResolver returns the entries of a named list.
type ListResolver interface {
	Resolve(ctx context.Context, sess *session.Session, listName string) ([]media.ListItem, error)
}

// ItemFetcher resolves entries into items.
type ItemFetcher interface {
	FetchAll(ctx context.Context, sess *session.Session, entries []media.ListItem) ([]media.Item, error)
}

// Runner executes one watchlist run.
type Runner struct {
	Sessions SessionProvider
	Resolver ListResolver
	Fetcher  ItemFetcher
	Sink     report.Sink
	ListName string

	logger zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(sessions SessionProvider, resolver ListResolver, fetcher ItemFetcher, sink report.Sink, listName string) *Runner {
	return &Runner{
		Sessions: sessions,
		Resolver: resolver,
		Fetcher:  fetcher,
		Sink:     sink,
		ListName: listName,
		logger:   logging.NewLogger("runner"),
	}
}

// Run logs in, resolves the list, fetches every item and writes the report.
// The sink only runs when every earlier stage succeeded.
func (r *Runner) Run(ctx context.Context, creds auth.Credentials) error {
	start := time.Now()

	sess, err := r.Sessions.Login(ctx, creds)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	entries, err := r.Resolver.Resolve(ctx, sess, r.ListName)
	if err != nil {
		return fmt.Errorf("resolve watchlist %q: %w", r.ListName, err)
	}
	for _, e := range entries {
		r.logger.Debug().Str("id", e.ID).Str("title", e.Title).Msg("Watchlist entry")
	}

	items, err := r.Fetcher.FetchAll(ctx, sess, entries)
	if err != nil {
		return fmt.Errorf("fetch items: %w", err)
	}

	if err := r.Sink.Write(ctx, items); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	r.logger.Info().
		Str("list", r.ListName).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Run complete")
	return nil
}
