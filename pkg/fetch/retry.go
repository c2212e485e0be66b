package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	itemFetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchlist_item_fetch_retries_total",
		Help: "Total number of item request retries",
	})

	itemFetchBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchlist_item_fetch_backoff_seconds",
		Help:    "Backoff duration before item request retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

// backoff returns the delay before retry number n (1-based), capped at
// cfg.MaxBackoff and without jitter.
func backoff(cfg Config, n int) time.Duration {
	d := float64(cfg.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= cfg.BackoffMultiplier
		if time.Duration(d) >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if time.Duration(d) > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return time.Duration(d)
}

// jitter spreads d by ±20%.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff calls fn until it succeeds, cfg.Retries retries are used up
// or ctx is done. It returns the number of attempts made and the last error.
func retryWithBackoff(ctx context.Context, cfg Config, logger zerolog.Logger, fn func() error) (int, error) {
	maxAttempts := cfg.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Debug().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == maxAttempts {
			return attempt, lastErr
		}

		wait := jitter(backoff(cfg, attempt))
		itemFetchRetriesTotal.Inc()
		itemFetchBackoffSeconds.Observe(wait.Seconds())

		logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}

	return maxAttempts, lastErr
}
