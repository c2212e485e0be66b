// Package testutil provides a mock catalog service for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

const (
	// MockActionID is the form action identifier served on the login page.
	MockActionID = "mock-action"

	// MockToken is the challenge response the login page carries and the exchange expects.
	MockToken = "mock-turnstile-token"

	// MockSessionValue is the luci_session value issued on successful login.
	MockSessionValue = "mock-session"

	// MockAccountPath is where a successful login redirects to when enabled.
	MockAccountPath = "/user/account"
)

// MockCatalogResponse defines a canned response for a path.
type MockCatalogResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCopy is one copy of an item at a branch.
type MockCopy struct {
	Location  string
	Available bool
	Shelfmark string
}

// MockList is a named list with item ids.
type MockList struct {
	Name string
	IDs  []string
}

// MockCatalog is a configurable mock catalog server.
type MockCatalog struct {
	server *httptest.Server
	mu     sync.RWMutex

	appID         string
	handlers      map[string]func(w http.ResponseWriter, r *http.Request)
	lists         []MockList
	items         map[string]string
	itemFailures  map[string]int
	loginRedirect bool

	// Tracking
	RequestCount      int
	LoginCount        int
	requests          map[string]int
	LastRequestHeader http.Header
}

// NewMockCatalog creates a mock catalog that requires appID on API requests.
func NewMockCatalog(appID string) *MockCatalog {
	mock := &MockCatalog{
		appID:        appID,
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		items:        make(map[string]string),
		itemFailures: make(map[string]int),
		requests:     make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		mock.mu.Lock()
		mock.RequestCount++
		mock.requests[key]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[key]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LoginCount = 0
	m.requests = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler overrides the handler for "METHOD /path".
func (m *MockCatalog) SetHandler(method, path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a canned response for "METHOD /path".
func (m *MockCatalog) SetResponse(method, path string, resp MockCatalogResponse) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetLists replaces the lists served by the list endpoint.
func (m *MockCatalog) SetLists(lists ...MockList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = lists
}

// SetItem registers an item detail body.
func (m *MockCatalog) SetItem(id, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = body
}

// SetLoginRedirect makes a successful login answer 303 to the account page,
// with the session cookie set on the redirect response.
func (m *MockCatalog) SetLoginRedirect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginRedirect = enabled
}

// FailItem answers the next n requests for id with 503; n < 0 fails forever.
func (m *MockCatalog) FailItem(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemFailures[id] = n
}

// Requests returns how often "METHOD /path" was requested.
func (m *MockCatalog) Requests(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[method+" "+path]
}

// GetLoginCount returns the number of credential exchanges.
func (m *MockCatalog) GetLoginCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LoginCount
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/login" && r.Method == http.MethodGet:
		m.loginPage(w)
	case r.URL.Path == "/login" && r.Method == http.MethodPost:
		m.authenticate(w, r)
	case r.URL.Path == MockAccountPath && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Mein Konto</h1></body></html>")
	case r.URL.Path == "/api/items" && r.Method == http.MethodGet && r.URL.Query().Get("type") == "lists":
		if !m.authorized(w, r) {
			return
		}
		m.serveLists(w)
	case strings.HasPrefix(r.URL.Path, "/api/items/") && r.Method == http.MethodGet:
		if !m.authorized(w, r) {
			return
		}
		m.serveItem(w, strings.TrimPrefix(r.URL.Path, "/api/items/"))
	default:
		http.NotFound(w, r)
	}
}

func (m *MockCatalog) loginPage(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "mock-csrf", Path: "/"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body><form id="login">
<input type="hidden" name="$ACTION_ID_%s">
<input id="bNumber" name="bNumber"><input id="pin" name="pin" type="password">
<input type="hidden" name="cf-turnstile-response" value="%s">
</form></body></html>`, MockActionID, MockToken)
}

func (m *MockCatalog) authenticate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.LoginCount++
	m.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.Header.Get("Next-Action") != MockActionID {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("cf-turnstile-response") != MockToken {
		http.Error(w, "challenge failed", http.StatusForbidden)
		return
	}
	if r.PostForm.Get("bNumber") == "" || r.PostForm.Get("pin") == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if _, err := r.Cookie("csrf"); err != nil {
		http.Error(w, "missing csrf", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "luci_session",
		Value:    MockSessionValue,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
	})

	m.mu.RLock()
	redirect := m.loginRedirect
	m.mu.RUnlock()
	if redirect {
		http.Redirect(w, r, MockAccountPath, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *MockCatalog) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Solus-App-Id") != m.appID {
		http.Error(w, `{"error":"unknown app"}`, http.StatusForbidden)
		return false
	}
	c, err := r.Cookie("luci_session")
	if err != nil || c.Value != MockSessionValue {
		http.Error(w, `{"error":"not logged in"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

type rawMeta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (m *MockCatalog) serveLists(w http.ResponseWriter) {
	type rawEntry struct {
		ID                 string    `json:"id"`
		AdditionalMetaData []rawMeta `json:"additionalMetaData"`
	}
	type rawList struct {
		ListName string     `json:"listName"`
		Items    []rawEntry `json:"items"`
	}

	m.mu.RLock()
	out := make([]rawList, 0, len(m.lists))
	for _, l := range m.lists {
		rl := rawList{ListName: l.Name, Items: []rawEntry{}}
		for _, id := range l.IDs {
			rl.Items = append(rl.Items, rawEntry{
				ID:                 id,
				AdditionalMetaData: []rawMeta{{Key: "title", Value: "Titel " + id}},
			})
		}
		out = append(out, rl)
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(out)
}

func (m *MockCatalog) serveItem(w http.ResponseWriter, id string) {
	m.mu.Lock()
	fail := m.itemFailures[id]
	if fail > 0 {
		m.itemFailures[id] = fail - 1
	}
	body, ok := m.items[id]
	m.mu.Unlock()

	if fail != 0 {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte(body))
}

// NewItemBody builds an item endpoint body.
func NewItemBody(id, title, signature string, copies ...MockCopy) string {
	type rawCopy struct {
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
		Available bool   `json:"available"`
		Shelfmark string `json:"shelfmark,omitempty"`
	}
	body := struct {
		ID       string    `json:"id"`
		Title    string    `json:"title"`
		Format   string    `json:"format"`
		Metadata []rawMeta `json:"metadata"`
		Copies   []rawCopy `json:"copies"`
	}{
		ID:       id,
		Title:    title,
		Format:   "Buch",
		Metadata: []rawMeta{{Key: "signature", Value: signature}},
		Copies:   []rawCopy{},
	}
	for _, c := range copies {
		rc := rawCopy{Available: c.Available, Shelfmark: c.Shelfmark}
		rc.Location.Name = c.Location
		body.Copies = append(body.Copies, rc)
	}

	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(data)
}
