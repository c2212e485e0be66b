// Package auth drives session acquisition: reuse a cached session when it is
// still valid, otherwise solve the login challenge and exchange credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/catalog"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/challenge"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

var loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchlist_logins_total",
	Help: "Total login attempts by result (cached, fresh, failed)",
}, []string{"result"})

// State is a step of the login state machine.
type State int

const (
	StateStart State = iota
	StateCacheCheck
	StateChallenging
	StateAuthenticated
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCacheCheck:
		return "cache_check"
	case StateChallenging:
		return "challenging"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoginError reports a failed login and the state it failed in.
type LoginError struct {
	State State
	Err   error
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed during %s: %v", e.State, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LoginError) Unwrap() error {
	return e.Err
}

// Authenticator is the catalog surface used to log in.
type Authenticator interface {
	LoginPage(ctx context.Context) (*challenge.LoginPage, error)
	Authenticate(ctx context.Context, req catalog.AuthRequest) (*session.Session, error)
}

// Config controls the session manager.
type Config struct {
	// UseCache enables loading and persisting sessions through the store.
	UseCache bool

	// Remember asks the service for a long-lived session.
	Remember bool

	// CookieName is the entry that proves authentication.
	CookieName string

	// ExpiryBuffer is the minimum remaining lifetime of a reusable session.
	ExpiryBuffer time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		UseCache:     false,
		Remember:     true,
		CookieName:   session.CookieName,
		ExpiryBuffer: session.ExpiryBuffer,
	}
}

// Manager acquires authenticated sessions.
type Manager struct {
	catalog Authenticator
	solver  challenge.Solver
	store   session.Store
	config  Config
	logger  zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewManager creates a session manager. store may be nil when caching is disabled.
func NewManager(cat Authenticator, solver challenge.Solver, store session.Store, cfg Config) *Manager {
	if cat == nil {
		panic("auth: authenticator cannot be nil")
	}
	if solver == nil {
		panic("auth: solver cannot be nil")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = session.CookieName
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = session.ExpiryBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if store == nil {
		cfg.UseCache = false
	}

	return &Manager{
		catalog: cat,
		solver:  solver,
		store:   store,
		config:  cfg,
		logger:  logging.NewLogger("session-manager"),
		state:   StateStart,
	}
}

// State returns the state reached by the most recent Login.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	m.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Login state transition")
}

// Login returns an authenticated session, reusing a cached one when it is
// still valid for at least the expiry buffer.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*session.Session, error) {
	m.transition(StateStart)

	if err := creds.Validate(); err != nil {
		return nil, m.fail(StateStart, err)
	}

	if m.config.UseCache {
		m.transition(StateCacheCheck)
		if sess := m.cachedSession(ctx); sess != nil {
			m.transition(StateAuthenticated)
			loginsTotal.WithLabelValues("cached").Inc()
			m.logger.Info().Int("cookies", sess.Len()).Msg("Reusing cached session")
			return sess, nil
		}
	}

	m.transition(StateChallenging)
	sess, err := m.challenge(ctx, creds)
	if err != nil {
		return nil, m.fail(StateChallenging, err)
	}

	m.transition(StateAuthenticated)
	loginsTotal.WithLabelValues("fresh").Inc()
	m.logger.Info().Int("cookies", sess.Len()).Msg("Login successful")

	if m.config.UseCache {
		if err := m.store.Save(ctx, sess); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to persist session")
		}
	}

	return sess, nil
}

// cachedSession returns a valid cached session or nil. Store failures are
// logged and treated as a miss.
func (m *Manager) cachedSession(ctx context.Context) *session.Session {
	sess, err := m.store.Load(ctx)
	if err != nil {
		var storeErr *session.StoreError
		switch {
		case errors.Is(err, session.ErrCacheMiss):
			m.logger.Info().Msg("No cached session found")
		case errors.As(err, &storeErr):
			m.logger.Warn().Err(err).Str("location", storeErr.Location).Msg("Cached session unreadable")
		default:
			m.logger.Warn().Err(err).Msg("Session cache lookup failed")
		}
		return nil
	}

	hasExpiry, err := m.validate(sess)
	if err != nil {
		m.logger.Info().Err(err).Msg("Cached session invalid, logging in")
		return nil
	}
	if !hasExpiry {
		m.logger.Warn().Str("cookie", m.config.CookieName).Msg("Cached session cookie has no expiry")
	}
	return sess
}

func (m *Manager) validate(sess *session.Session) (bool, error) {
	return sess.Validate(m.config.CookieName, m.config.Now(), m.config.ExpiryBuffer)
}

// challenge loads the login surface, solves the challenge and exchanges the
// credentials. The page's action identifier is carried into the exchange.
func (m *Manager) challenge(ctx context.Context, creds Credentials) (*session.Session, error) {
	page, err := m.catalog.LoginPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("load login page: %w", err)
	}

	token, err := m.solver.Solve(ctx, page)
	if err != nil {
		return nil, err
	}
	m.logger.Debug().Msg("Challenge solved")

	sess, err := m.catalog.Authenticate(ctx, catalog.AuthRequest{
		Username: creds.Username,
		Password: creds.Password,
		Token:    token,
		Remember: m.config.Remember,
		ActionID: page.ActionID,
		Cookies:  page.Cookies,
	})
	if err != nil {
		return nil, fmt.Errorf("credential exchange: %w", err)
	}

	hasExpiry, err := m.validate(sess)
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if !hasExpiry {
		m.logger.Warn().Str("cookie", m.config.CookieName).Msg("Session cookie has no expiry")
	}
	return sess, nil
}

func (m *Manager) fail(state State, err error) error {
	m.transition(StateFailed)
	loginsTotal.WithLabelValues("failed").Inc()
	return &LoginError{State: state, Err: err}
}
