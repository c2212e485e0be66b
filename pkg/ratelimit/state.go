// Package ratelimit paces requests to the catalog service.
// It combines a token bucket with a shared pause that the server can request
// through Retry-After on 429/503 responses.
package ratelimit

import (
	"time"
)

// MaxPause caps how long a single Retry-After header may stall all requests.
const MaxPause = 2 * time.Minute

// State is a snapshot of the pacing state.
type State struct {
	// PausedUntil is the instant until which no request may be sent.
	PausedUntil time.Time

	// Pauses counts how often the server asked us to back off.
	Pauses int
}

// IsPaused reports whether requests are currently held back.
func (s State) IsPaused(now time.Time) bool {
	return now.Before(s.PausedUntil)
}

// TimeUntilResume returns the remaining pause, 0 when not paused.
func (s State) TimeUntilResume(now time.Time) time.Duration {
	d := s.PausedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
