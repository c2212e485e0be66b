// Package catalog provides the HTTP client for the library catalog service:
// login surface, credential exchange, list endpoint and item endpoint.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/challenge"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/ratelimit"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

// Prometheus metrics for catalog requests.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlist_catalog_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "watchlist_catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlist_catalog_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// Endpoint names used as metric labels.
const (
	endpointLoginPage    = "login_page"
	endpointAuthenticate = "authenticate"
	endpointLists        = "lists"
	endpointItem         = "item"
)

const (
	// DefaultBaseURL is the public catalog host.
	DefaultBaseURL = "https://www.buecherhallen.de"

	// DefaultUserAgent mimics a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	appIDHeader       = "Solus-App-Id"
	actionHeader      = "Next-Action"
	actionInputPrefix = "$ACTION_ID_"

	loginPath = "/login"
	listsPath = "/api/items"
	itemPath  = "/api/items/{id}"
)

// consentCookies pre-accept the cookie banner so the login form is reachable.
var consentCookies = []*http.Cookie{
	{Name: "luci_CC_28d4dc2f-692b-472b-870d-5e6c35c4ad26", Value: "true", Path: "/"},
	{Name: "luci_gaConsent_28d4dc2f-692b-472b-870d-5e6c35c4ad26", Value: "false", Path: "/"},
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog service, without trailing slash.
	BaseURL string

	// AppID is sent as Solus-App-Id on API requests (REQUIRED).
	AppID string

	UserAgent string

	// Timeout bounds a single HTTP request including redirects.
	Timeout time.Duration

	// Pacing; RequestsPerSecond <= 0 disables the token bucket.
	RequestsPerSecond float64
	Burst             int

	// BypassCloudflare wraps the transport with browser-like TLS and headers.
	BypassCloudflare bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(appID string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		AppID:             appID,
		UserAgent:         DefaultUserAgent,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 4,
		Burst:             4,
		BypassCloudflare:  true,
	}
}

// RawList is one named list as returned by the list endpoint.
type RawList struct {
	ListName string               `json:"listName"`
	Items    []media.RawListEntry `json:"items"`
}

// AuthRequest is the credential exchange submitted to the authentication endpoint.
type AuthRequest struct {
	Username string
	Password string

	// Token is the solved challenge response.
	Token    string
	Remember bool

	// ActionID comes from the LoginPage that produced Token.
	ActionID string

	// Cookies set while loading the login page.
	Cookies []*http.Cookie
}

// Client is the catalog service client.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.Tracker
	config  Config
	host    string
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if cfg.AppID == "" {
		return nil, ErrMissingAppID
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("catalog-client")

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("User-Agent", cfg.UserAgent)
	// session cookies are passed per request
	httpClient.SetCookieJar(nil)
	httpClient.SetRedirectPolicy(
		resty.DomainCheckRedirectPolicy(base.Hostname()),
		resty.RedirectPolicyFunc(collectRedirectCookies),
	)
	if cfg.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	limiter := ratelimit.NewTracker(cfg.RequestsPerSecond, cfg.Burst, logger)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		limiter.UpdateFromResponse(resp.StatusCode(), resp.Header())
		return nil
	})

	return &Client{
		http:    httpClient,
		limiter: limiter,
		config:  cfg,
		host:    base.Hostname(),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// HTTPClient exposes the underlying *http.Client (for testing).
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// Limiter returns the request pacing state.
func (c *Client) Limiter() *ratelimit.Tracker {
	return c.limiter
}

// LoginPage fetches the login surface and extracts the form action identifier.
func (c *Client) LoginPage(ctx context.Context) (*challenge.LoginPage, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		SetCookies(consentCookies)

	resp, err := c.execute(req, http.MethodGet, loginPath, endpointLoginPage)
	if err != nil {
		return nil, err
	}

	page := &challenge.LoginPage{
		URL:     resp.Request.URL,
		HTML:    resp.Body(),
		Cookies: append(append([]*http.Cookie{}, consentCookies...), resp.Cookies()...),
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	page.ActionID = ExtractActionID(doc)

	c.logger.Debug().
		Str("url", page.URL).
		Bool("has_action_id", page.ActionID != "").
		Int("cookies", len(page.Cookies)).
		Msg("Loaded login page")

	return page, nil
}

// ExtractActionID returns the server action identifier of the login form,
// read from a hidden "$ACTION_ID_<id>" input or a data-action-id attribute.
func ExtractActionID(doc *goquery.Document) string {
	var id string
	doc.Find("input[name^='" + actionInputPrefix + "']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		id = strings.TrimPrefix(name, actionInputPrefix)
		return id == ""
	})
	if id != "" {
		return id
	}
	if v, ok := doc.Find("form[data-action-id]").First().Attr("data-action-id"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Authenticate submits the credential exchange. The returned session holds the
// response cookies merged over the login page cookies; whether it is actually
// authenticated is for the caller to validate.
func (c *Client) Authenticate(ctx context.Context, ar AuthRequest) (*session.Session, error) {
	redirected := &redirectCookies{}
	req := c.http.R().
		SetContext(context.WithValue(ctx, redirectCookiesKey{}, redirected)).
		SetCookies(ar.Cookies).
		SetFormData(map[string]string{
			"bNumber":            ar.Username,
			"pin":                ar.Password,
			challenge.TokenField: ar.Token,
			"remember-me":        strconv.FormatBool(ar.Remember),
		})
	if ar.ActionID != "" {
		req.SetHeader(actionHeader, ar.ActionID)
	}

	resp, err := c.execute(req, http.MethodPost, loginPath, endpointAuthenticate)
	if err != nil {
		return nil, err
	}

	now := c.now()
	sess := session.FromHTTPCookies(ar.Cookies, c.host, now).
		Apply(redirected.list(), c.host, now).
		Apply(resp.Cookies(), c.host, now)

	c.logger.Debug().
		Int("status", resp.StatusCode()).
		Int("redirect_cookies", len(redirected.list())).
		Int("cookies", sess.Len()).
		Msg("Credential exchange completed")

	return sess, nil
}

type redirectCookiesKey struct{}

// redirectCookies collects Set-Cookie headers of redirect responses, which
// the HTTP client drops when it follows them without a jar.
type redirectCookies struct {
	mu      sync.Mutex
	cookies []*http.Cookie
}

func (r *redirectCookies) add(cookies []*http.Cookie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookies = append(r.cookies, cookies...)
}

func (r *redirectCookies) list() []*http.Cookie {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Cookie(nil), r.cookies...)
}

func collectRedirectCookies(req *http.Request, _ []*http.Request) error {
	if req.Response == nil {
		return nil
	}
	if rc, ok := req.Context().Value(redirectCookiesKey{}).(*redirectCookies); ok {
		rc.add(req.Response.Cookies())
	}
	return nil
}

// Lists returns all lists owned by the session.
func (c *Client) Lists(ctx context.Context, sess *session.Session) ([]RawList, error) {
	req := c.apiRequest(ctx, sess).SetQueryParam("type", "lists")

	resp, err := c.execute(req, http.MethodGet, listsPath, endpointLists)
	if err != nil {
		return nil, err
	}

	var lists []RawList
	if err := json.Unmarshal(resp.Body(), &lists); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}

	c.logger.Debug().Int("lists", len(lists)).Msg("Fetched lists")
	return lists, nil
}

// Item returns the raw detail body of a catalog item.
func (c *Client) Item(ctx context.Context, sess *session.Session, id string) ([]byte, error) {
	req := c.apiRequest(ctx, sess).SetPathParam("id", id)

	resp, err := c.execute(req, http.MethodGet, itemPath, endpointItem)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) apiRequest(ctx context.Context, sess *session.Session) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader(appIDHeader, c.config.AppID).
		SetCookies(sess.HTTPCookies())
}

// execute sends req and turns transport failures and non-2xx responses into errors.
func (c *Client) execute(req *resty.Request, method, path, endpoint string) (*resty.Response, error) {
	start := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing catalog request")

	resp, err := req.Execute(method, path)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Catalog request failed")
		return nil, fmt.Errorf("catalog %s: %w", endpoint, err)
	}

	catalogRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

	if !resp.IsSuccess() {
		class := Classify(resp.StatusCode())
		catalogErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode()).
			Str("error_class", string(class)).
			Msg("Catalog request error")
		return nil, &HTTPError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Class:      class,
			Message:    http.StatusText(resp.StatusCode()),
		}
	}

	return resp, nil
}
