// Package challenge turns a login page into the bot-protection token the
// authentication endpoint requires.
//
// Solving the interactive widget itself is left to an external helper (a
// browser session or a person); solvers here only obtain the resulting token.
package challenge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TokenField is the form field a solved Turnstile widget fills in.
const TokenField = "cf-turnstile-response"

// ErrNoToken indicates that a solver could not produce a token.
var ErrNoToken = errors.New("no challenge token")

// LoginPage is the context handed to a solver: the fetched login surface.
type LoginPage struct {
	URL string

	// HTML is the raw page body.
	HTML []byte

	// ActionID is the form action identifier observed on the page, forwarded
	// unchanged to the credential exchange.
	ActionID string

	// Cookies were set while loading the page.
	Cookies []*http.Cookie
}

// Document parses the page body.
func (p *LoginPage) Document() (*goquery.Document, error) {
	if p == nil {
		return nil, errors.New("login page is nil")
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(p.HTML))
}

// Solver obtains a challenge-response token for a login page.
type Solver interface {
	Solve(ctx context.Context, page *LoginPage) (string, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, page *LoginPage) (string, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, page *LoginPage) (string, error) {
	return f(ctx, page)
}

// ChallengeError reports that no token could be obtained.
type ChallengeError struct {
	Solver string
	Err    error
}

// Error implements the error interface.
func (e *ChallengeError) Error() string {
	if e.Solver == "" {
		return fmt.Sprintf("challenge not solved: %v", e.Err)
	}
	return fmt.Sprintf("challenge not solved by %s: %v", e.Solver, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ChallengeError) Unwrap() error {
	return e.Err
}

// StaticSolver returns a token obtained out of band, e.g. by a browser helper.
type StaticSolver struct {
	Token string
}

// Solve returns the configured token.
func (s StaticSolver) Solve(ctx context.Context, _ *LoginPage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ChallengeError{Solver: "static", Err: err}
	}
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "", &ChallengeError{Solver: "static", Err: ErrNoToken}
	}
	return token, nil
}

// FormSolver reads the token a completed widget left in the page's hidden
// response input.
type FormSolver struct{}

// Solve extracts the token from the login page.
func (FormSolver) Solve(ctx context.Context, page *LoginPage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ChallengeError{Solver: "form", Err: err}
	}
	doc, err := page.Document()
	if err != nil {
		return "", &ChallengeError{Solver: "form", Err: fmt.Errorf("parse login page: %w", err)}
	}

	token := ExtractToken(doc)
	if token == "" {
		return "", &ChallengeError{Solver: "form", Err: ErrNoToken}
	}
	return token, nil
}

// ExtractToken returns the value of the first non-empty response input.
func ExtractToken(doc *goquery.Document) string {
	var token string
	doc.Find(fmt.Sprintf(`input[name=%q]`, TokenField)).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		token = strings.TrimSpace(sel.AttrOr("value", ""))
		return token == ""
	})
	return token
}

// Chain tries solvers in order and returns the first token obtained.
type Chain []Solver

// Solve runs the chain.
func (c Chain) Solve(ctx context.Context, page *LoginPage) (string, error) {
	if len(c) == 0 {
		return "", &ChallengeError{Solver: "chain", Err: ErrNoToken}
	}

	var errs []error
	for _, s := range c {
		token, err := s.Solve(ctx, page)
		if err == nil && token != "" {
			return token, nil
		}
		if err == nil {
			err = ErrNoToken
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", &ChallengeError{Solver: "chain", Err: errors.Join(errs...)}
}
