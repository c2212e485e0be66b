package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/catalog"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/session"
)

// fakeSource serves item bodies; failures[id] is the number of initial
// requests answered with 503 (-1 means always).
type fakeSource struct {
	mu       sync.Mutex
	bodies   map[string]string
	failures map[string]int
	calls    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bodies:   map[string]string{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeSource) add(id, signature string) {
	f.bodies[id] = fmt.Sprintf(`{"id":%q,"title":"Titel %s","metadata":[{"key":"signature","value":%q}],"copies":[{"location":{"name":"Altona"},"available":true}]}`, id, id, signature)
}

func (f *fakeSource) Item(ctx context.Context, _ *session.Session, id string) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	n := f.calls[id]
	fail := f.failures[id]
	body, ok := f.bodies[id]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail < 0 || n <= fail {
		return nil, &catalog.HTTPError{Endpoint: "item", StatusCode: 503, Class: catalog.ErrorClassServer}
	}
	if !ok {
		return nil, &catalog.HTTPError{Endpoint: "item", StatusCode: 404, Class: catalog.ErrorClassClient}
	}
	return []byte(body), nil
}

func (f *fakeSource) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func testConfig(workers, retries int) Config {
	return Config{
		Workers:           workers,
		Retries:           retries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func entries(ids ...string) []media.ListItem {
	out := make([]media.ListItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, media.ListItem{ID: id, Source: "Merkliste"})
	}
	return out
}

func TestFetchAll_RetryAccounting(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		wantErr      bool
		wantAttempts int
	}{
		{name: "enough retries", retries: 2, wantErr: false, wantAttempts: 3},
		{name: "retries exhausted", retries: 1, wantErr: true, wantAttempts: 2},
		{name: "no retries", retries: 0, wantErr: true, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.add("A", "GEO 1")
			src.failures["A"] = 2

			items, err := New(src, testConfig(1, tt.retries)).FetchAll(context.Background(), nil, entries("A"))

			assert.Equal(t, tt.wantAttempts, src.callCount("A"))
			if !tt.wantErr {
				require.NoError(t, err)
				require.Len(t, items, 1)
				assert.Equal(t, "A", items[0].ID)
				return
			}

			assert.Nil(t, items)
			var fetchErr *ItemFetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, "A", fetchErr.ID)
			assert.Equal(t, 503, fetchErr.Status)
			assert.Equal(t, tt.wantAttempts, fetchErr.Attempts)
		})
	}
}

func TestFetchAll_FailFast(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 5; i++ {
		src.add(fmt.Sprint(i), fmt.Sprintf("SIG %d", i))
	}
	src.failures["3"] = -1

	items, err := New(src, testConfig(1, 1)).FetchAll(context.Background(), nil, entries("1", "2", "3", "4", "5"))

	assert.Nil(t, items, "no partial result on failure")
	var fetchErr *ItemFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "3", fetchErr.ID)
	assert.Equal(t, 2, fetchErr.Attempts)

	assert.Equal(t, 2, src.callCount("3"))
	assert.Zero(t, src.callCount("4"), "no new items dispatched after a failure")
	assert.Zero(t, src.callCount("5"), "no new items dispatched after a failure")
}

func TestFetchAll_FailFastParallel(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 5; i++ {
		src.add(fmt.Sprint(i), fmt.Sprintf("SIG %d", i))
	}
	src.failures["3"] = -1

	items, err := New(src, testConfig(3, 1)).FetchAll(context.Background(), nil, entries("1", "2", "3", "4", "5"))

	assert.Nil(t, items)
	var fetchErr *ItemFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "3", fetchErr.ID)
}

func TestFetchAll_DeterministicAcrossWorkerCounts(t *testing.T) {
	signatures := []string{"1 @ GEO 5", "ROM 2", "GEO 5", "", "ABC", "rom 1", "ROM 2", "1 @ KIN 3", "Z", "GEO 10"}

	src := newFakeSource()
	var ids []string
	for i, sig := range signatures {
		id := fmt.Sprintf("T%02d", i)
		src.add(id, sig)
		ids = append(ids, id)
	}

	var baseline []media.Item
	for _, workers := range []int{1, 3, 10} {
		items, err := New(src, testConfig(workers, 0)).FetchAll(context.Background(), nil, entries(ids...))
		require.NoError(t, err, "workers=%d", workers)
		require.Len(t, items, len(ids))

		for i := 1; i < len(items); i++ {
			prev, cur := items[i-1], items[i]
			if prev.Signature > cur.Signature || (prev.Signature == cur.Signature && prev.ID > cur.ID) {
				t.Fatalf("workers=%d: items not sorted at %d: %q/%s before %q/%s", workers, i, prev.Signature, prev.ID, cur.Signature, cur.ID)
			}
		}

		if baseline == nil {
			baseline = items
			continue
		}
		if diff := cmp.Diff(baseline, items); diff != "" {
			t.Errorf("workers=%d result differs from workers=1 (-want +got):\n%s", workers, diff)
		}
	}
}

func TestFetchAll_ParseErrorNotRetried(t *testing.T) {
	src := newFakeSource()
	src.bodies["bad"] = `{"id":`

	_, err := New(src, testConfig(2, 3)).FetchAll(context.Background(), nil, entries("bad"))

	var fetchErr *ItemFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.Zero(t, fetchErr.Status)
	assert.Equal(t, 1, src.callCount("bad"))
}

func TestFetchAll_NotFoundIsRetriedThenFails(t *testing.T) {
	src := newFakeSource()

	_, err := New(src, testConfig(1, 1)).FetchAll(context.Background(), nil, entries("missing"))

	var fetchErr *ItemFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.Status)
	assert.Equal(t, 2, src.callCount("missing"))
}

func TestFetchAll_Empty(t *testing.T) {
	items, err := New(newFakeSource(), DefaultConfig()).FetchAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestFetchAll_TitleFallsBackToListEntry(t *testing.T) {
	src := newFakeSource()
	src.bodies["A"] = `{"id":"A","metadata":[{"key":"signature","value":"X"}]}`

	items, err := New(src, testConfig(1, 0)).FetchAll(context.Background(), nil,
		[]media.ListItem{{ID: "A", Title: "Aus der Liste", Author: "Jemand"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Aus der Liste", items[0].Title)
	assert.Equal(t, "Jemand", items[0].Author)
	assert.Empty(t, items[0].Availabilities)
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	src := newFakeSource()
	src.add("A", "X")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := New(src, testConfig(2, 0)).FetchAll(ctx, nil, entries("A"))
	assert.Nil(t, items)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestNew_Defaults(t *testing.T) {
	cfg := New(newFakeSource(), Config{Workers: 0, Retries: -1}).Config()

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialBackoff)
	assert.GreaterOrEqual(t, cfg.MaxBackoff, cfg.InitialBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(cfg, tt.retry), "retry %d", tt.retry)
	}
}

func TestJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(time.Second)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter(1s) = %v, want within ±20%%", d)
		}
	}
}
