package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/catalog"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

var (
	itemFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlist_item_fetches_total",
		Help: "Total item fetches by result (success, failed, parse_error)",
	}, []string{"result"})

	itemFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchlist_item_fetch_duration_seconds",
		Help:    "Item fetch duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds fetcher configuration.
type Config struct {
	// Workers is the number of parallel item requests.
	Workers int

	// Retries is the number of additional attempts per item.
	Retries int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           3,
		Retries:           1,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ItemSource returns the raw detail body of an item.
type ItemSource interface {
	Item(ctx context.Context, sess *session.Session, id string) ([]byte, error)
}

// Fetcher resolves list entries into items using a worker pool.
type Fetcher struct {
	source ItemSource
	config Config
	logger zerolog.Logger
}

// New creates a fetcher. Invalid config values fall back to defaults.
func New(source ItemSource, config Config) *Fetcher {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}

	return &Fetcher{
		source: source,
		config: config,
		logger: logging.NewLogger("item-fetcher"),
	}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config {
	return f.config
}

// FetchAll fetches every entry and returns the items sorted by signature.
// The first entry that cannot be fetched aborts the run and its
// *ItemFetchError is returned with no items.
func (f *Fetcher) FetchAll(ctx context.Context, sess *session.Session, entries []media.ListItem) ([]media.Item, error) {
	start := time.Now()

	f.logger.Info().
		Int("items", len(entries)).
		Int("workers", f.config.Workers).
		Int("retries", f.config.Retries).
		Msg("Starting item fetch")

	if len(entries) == 0 {
		return []media.Item{}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		results  = make([]media.Item, 0, len(entries))
		failOnce sync.Once
		firstErr error
	)
	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	queue := make(chan media.ListItem)
	go func() {
		defer close(queue)
		for _, e := range entries {
			select {
			case queue <- e:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < f.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0
			for entry := range queue {
				if runCtx.Err() != nil {
					break
				}

				item, err := f.fetchOne(runCtx, sess, entry)
				if err != nil {
					fail(err)
					break
				}

				mu.Lock()
				results = append(results, item)
				done := len(results)
				mu.Unlock()
				processed++

				if done%25 == 0 {
					f.logger.Info().
						Int("fetched", done).
						Int("total", len(entries)).
						Msg("Fetch progress")
				}
			}
			f.logger.Debug().
				Int("worker_id", workerID).
				Int("items_processed", processed).
				Msg("Worker stopped")
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		f.logger.Warn().
			Err(firstErr).
			Int("fetched", len(results)).
			Int("total", len(entries)).
			Msg("Item fetch aborted")
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	media.SortBySignature(results)

	f.logger.Info().
		Int("items", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Item fetch complete")

	return results, nil
}

// fetchOne requests one item with retries and parses it. Parse errors are not retried.
func (f *Fetcher) fetchOne(ctx context.Context, sess *session.Session, entry media.ListItem) (media.Item, error) {
	start := time.Now()
	defer func() {
		itemFetchDuration.Observe(time.Since(start).Seconds())
	}()

	logger := f.logger.With().Str("item_id", entry.ID).Logger()

	var body []byte
	attempts, err := retryWithBackoff(ctx, f.config, logger, func() error {
		b, err := f.source.Item(ctx, sess, entry.ID)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		itemFetchesTotal.WithLabelValues("failed").Inc()
		return media.Item{}, &ItemFetchError{
			ID:       entry.ID,
			Status:   catalog.StatusCode(err),
			Attempts: attempts,
			Err:      err,
		}
	}

	item, err := media.ParseItem(body)
	if err != nil {
		itemFetchesTotal.WithLabelValues("parse_error").Inc()
		return media.Item{}, &ItemFetchError{
			ID:       entry.ID,
			Attempts: attempts,
			Err:      fmt.Errorf("parse item: %w", err),
		}
	}

	if item.Title == "" {
		item.Title = entry.Title
	}
	if item.Author == "" {
		item.Author = entry.Author
	}

	itemFetchesTotal.WithLabelValues("success").Inc()
	logger.Debug().
		Int("attempts", attempts).
		Int("locations", len(item.Availabilities)).
		Msg("Item fetched")

	return item, nil
}
