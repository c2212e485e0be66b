// Package session models the authenticated cookie bundle of a catalog login
// and persists it between runs.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// CookieName is the designated entry that proves an authenticated session.
	CookieName = "luci_session"

	// ExpiryBuffer is the minimum remaining lifetime a session cookie needs to be reused.
	ExpiryBuffer = 5 * time.Minute
)

var (
	// ErrSessionCookieMissing indicates the bundle lacks the designated session cookie.
	ErrSessionCookieMissing = errors.New("session cookie missing")

	// ErrSessionExpired indicates the session cookie expires within the safety buffer.
	ErrSessionExpired = errors.New("session cookie expired")
)

// Cookie is a single persisted cookie entry.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`

	// Expires is the absolute expiry in unix seconds; nil for session cookies.
	Expires *int64 `json:"expires"`

	Secure bool `json:"secure"`

	// Rest carries attributes without a dedicated field (HttpOnly, SameSite).
	Rest map[string]string `json:"rest,omitempty"`
}

// ExpiresAt returns the expiry time and whether the cookie carries one.
func (c Cookie) ExpiresAt() (time.Time, bool) {
	if c.Expires == nil {
		return time.Time{}, false
	}
	return time.Unix(*c.Expires, 0), true
}

// Session is an authenticated cookie bundle. It is read-only once built and
// may be shared between goroutines.
type Session struct {
	Cookies []Cookie
}

// New builds a session from cookies; later duplicates override earlier ones.
func New(cookies ...Cookie) *Session {
	s := &Session{}
	for _, c := range cookies {
		s.set(c)
	}
	return s
}

func (s *Session) set(c Cookie) {
	for i, existing := range s.Cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			s.Cookies[i] = c
			return
		}
	}
	s.Cookies = append(s.Cookies, c)
}

// Merge returns a new session with the cookies of other layered over s.
func (s *Session) Merge(other *Session) *Session {
	merged := New()
	if s != nil {
		for _, c := range s.Cookies {
			merged.set(c)
		}
	}
	if other != nil {
		for _, c := range other.Cookies {
			merged.set(c)
		}
	}
	return merged
}

// Get returns the first cookie with the given name.
func (s *Session) Get(name string) (Cookie, bool) {
	if s == nil {
		return Cookie{}, false
	}
	for _, c := range s.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// Len returns the number of cookies in the bundle.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Cookies)
}

// Validate checks that the named cookie is present and, if it carries an
// expiry, stays valid for at least buffer beyond now.
// A cookie without expiry is accepted; hasExpiry reports which case applied.
func (s *Session) Validate(name string, now time.Time, buffer time.Duration) (hasExpiry bool, err error) {
	c, ok := s.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionCookieMissing, name)
	}

	expires, ok := c.ExpiresAt()
	if !ok {
		return false, nil
	}
	if !expires.After(now.Add(buffer)) {
		return true, fmt.Errorf("%w: %s expires at %s", ErrSessionExpired, name, expires.UTC().Format(time.RFC3339))
	}
	return true, nil
}

// HTTPCookies converts the bundle for use on outgoing requests.
func (s *Session) HTTPCookies() []*http.Cookie {
	if s == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		hc := &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		}
		if expires, ok := c.ExpiresAt(); ok {
			hc.Expires = expires
		}
		if c.Rest["HttpOnly"] == "true" {
			hc.HttpOnly = true
		}
		out = append(out, hc)
	}
	return out
}

// FromHTTPCookies builds a session from cookies received in a response.
// defaultDomain fills in host-only cookies. Deletions are skipped.
func FromHTTPCookies(cookies []*http.Cookie, defaultDomain string, now time.Time) *Session {
	return New().Apply(cookies, defaultDomain, now)
}

// Apply returns a new session with response cookies layered over s. A cookie
// the server deletes (Max-Age<0 or an expiry at or before now) removes the
// matching entry.
func (s *Session) Apply(cookies []*http.Cookie, defaultDomain string, now time.Time) *Session {
	out := s.Merge(nil)
	for _, hc := range cookies {
		if hc == nil {
			continue
		}
		c, live := fromHTTPCookie(hc, defaultDomain, now)
		if !live {
			out.remove(c)
			continue
		}
		out.set(c)
	}
	return out
}

func (s *Session) remove(c Cookie) {
	kept := s.Cookies[:0]
	for _, existing := range s.Cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			continue
		}
		kept = append(kept, existing)
	}
	s.Cookies = kept
}

// fromHTTPCookie converts hc; live is false when hc deletes the cookie.
func fromHTTPCookie(hc *http.Cookie, defaultDomain string, now time.Time) (c Cookie, live bool) {
	c = Cookie{
		Name:   hc.Name,
		Value:  hc.Value,
		Domain: hc.Domain,
		Path:   hc.Path,
		Secure: hc.Secure,
	}
	if c.Domain == "" {
		c.Domain = defaultDomain
	}
	if c.Path == "" {
		c.Path = "/"
	}

	switch {
	case hc.MaxAge < 0:
		return c, false
	case hc.MaxAge > 0:
		exp := now.Add(time.Duration(hc.MaxAge) * time.Second).Unix()
		c.Expires = &exp
	case !hc.Expires.IsZero():
		if !hc.Expires.After(now) {
			return c, false
		}
		exp := hc.Expires.Unix()
		c.Expires = &exp
	}

	rest := map[string]string{}
	if hc.HttpOnly {
		rest["HttpOnly"] = "true"
	}
	if sameSite := sameSiteName(hc.SameSite); sameSite != "" {
		rest["SameSite"] = sameSite
	}
	if len(rest) > 0 {
		c.Rest = rest
	}
	return c, true
}

func sameSiteName(mode http.SameSite) string {
	switch mode {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
