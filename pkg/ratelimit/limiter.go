package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchlist_rate_limit_pauses_total",
		Help: "Total number of server requested pauses (Retry-After)",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchlist_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for the limiter",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30},
	})
)

// Tracker gates outgoing requests. It is safe for concurrent use.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// NewTracker creates a tracker allowing rps requests per second with the given
// burst. rps <= 0 disables the token bucket; server pauses still apply.
func NewTracker(rps float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
	}
}

// State returns a snapshot of the current pacing state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	start := t.now()
	defer func() {
		waitSeconds.Observe(time.Since(start).Seconds())
	}()

	if pause := t.State().TimeUntilResume(t.now()); pause > 0 {
		t.logger.Debug().Dur("pause", pause).Msg("Request held back by server pause")
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// UpdateFromResponse pauses all requests when the server answers 429 or 503
// with a Retry-After header.
func (t *Tracker) UpdateFromResponse(status int, headers http.Header) {
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}

	pause, ok := parseRetryAfter(headers.Get("Retry-After"), t.now())
	if !ok {
		return
	}
	if pause > MaxPause {
		pause = MaxPause
	}

	until := t.now().Add(pause)

	t.mu.Lock()
	if until.After(t.state.PausedUntil) {
		t.state.PausedUntil = until
	}
	t.state.Pauses++
	t.mu.Unlock()

	pausesTotal.Inc()
	t.logger.Warn().
		Int("status", status).
		Dur("pause", pause).
		Msg("Server requested pause")
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			return 0, false
		}
		return d, true
	}
	return 0, false
}
