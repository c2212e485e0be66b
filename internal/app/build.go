package app

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/buecherhallen-watchlist/internal/config"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/auth"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/catalog"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/challenge"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/fetch"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/report"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/watchlist"
)

// Build assembles a runner from cfg. The table report goes to out. The
// returned cleanup releases external connections.
func Build(ctx context.Context, cfg config.Config, out io.Writer) (*Runner, func(), error) {
	catCfg := catalog.DefaultConfig(cfg.AppID)
	catCfg.BaseURL = cfg.BaseURL
	// the bypass transport only changes TLS behaviour
	catCfg.BypassCloudflare = strings.HasPrefix(cfg.BaseURL, "https://")

	client, err := catalog.New(catCfg)
	if err != nil {
		return nil, nil, err
	}

	store, cleanup := buildStore(ctx, cfg)

	solver := challenge.Chain{
		challenge.StaticSolver{Token: cfg.ChallengeToken},
		challenge.FormSolver{},
	}

	authCfg := auth.DefaultConfig()
	authCfg.UseCache = cfg.CacheCookies
	manager := auth.NewManager(client, solver, store, authCfg)

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Workers = cfg.Workers
	fetchCfg.Retries = cfg.Retries

	sink := report.Multi{
		report.NewHTMLSink(cfg.OutputDir),
		report.NewTableSink(out),
	}

	runner := NewRunner(manager, watchlist.NewResolver(client), fetch.New(client, fetchCfg), sink, cfg.ListName)
	return runner, cleanup, nil
}

// buildStore returns the session store: Redis when configured and reachable,
// the cookie file otherwise.
func buildStore(ctx context.Context, cfg config.Config) (session.Store, func()) {
	noop := func() {}
	if !cfg.CacheCookies {
		return nil, noop
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid Redis URL, using cookie file")
			return session.NewFileStore(cfg.CookieFile), noop
		}

		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable, using cookie file")
			return session.NewFileStore(cfg.CookieFile), noop
		}

		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis session cache")
		return session.NewRedisStore(client, session.DefaultRedisKey), func() { client.Close() }
	}

	return session.NewFileStore(cfg.CookieFile), noop
}
