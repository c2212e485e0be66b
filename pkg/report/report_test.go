package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
)

func sampleItems() []media.Item {
	return []media.Item{
		{
			ID: "1", Title: "Atlas", Author: "Muster", Signature: "1 @ GEO 1",
			Availabilities: media.Availabilities{
				"Wandsbek": {Location: "Wandsbek", Available: 1, Total: 1, ShelfLabel: "GEO 1 Mus"},
				"Altona":   {Location: "Altona", Available: 0, Total: 2},
			},
		},
		{
			ID: "2", Title: "<b>Zelda</b>", Format: "Nintendo Switch", Signature: "SPI 9",
			Availabilities: media.Availabilities{
				"Altona": {Location: "Altona", Available: 1, Total: 1},
			},
		},
		{
			ID: "3", Title: "Vergriffen", Signature: "ROM 3",
			Availabilities: media.Availabilities{
				"Altona": {Location: "Altona", Available: 0, Total: 1},
			},
		},
	}
}

func TestGroupByLocation(t *testing.T) {
	got := GroupByLocation(sampleItems())

	want := []LocationGroup{
		{Location: "Altona", Entries: []Entry{
			{ID: "2", Title: "<b>Zelda</b>", ShelfLabel: "SPI 9", VideoGame: true},
		}},
		{Location: "Wandsbek", Entries: []Entry{
			{ID: "1", Title: "Atlas", Author: "Muster", ShelfLabel: "GEO 1 Mus"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GroupByLocation() mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupByLocation_NothingAvailable(t *testing.T) {
	assert.Empty(t, GroupByLocation(sampleItems()[2:]))
	assert.Empty(t, GroupByLocation(nil))
}

func TestHTMLSink_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	sink := NewHTMLSink(dir)
	sink.Now = func() time.Time { return time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, sink.Write(context.Background(), sampleItems()))

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, "01.07.2026 12:00", "timestamp in Europe/Berlin (CEST)")
	assert.Contains(t, page, "&lt;b&gt;Zelda&lt;/b&gt;", "titles are escaped")
	assert.NotContains(t, page, "<b>Zelda</b>")
	assert.NotContains(t, page, "Vergriffen", "unavailable items are not listed")
	assert.Contains(t, page, "GEO 1 Mus")
	assert.Contains(t, page, `class="game"`)
	assert.Less(t, strings.Index(page, "Altona"), strings.Index(page, "Wandsbek"), "branches sorted by name")
}

func TestHTMLSink_Empty(t *testing.T) {
	dir := t.TempDir()
	sink := NewHTMLSink(dir)
	sink.Location = time.UTC

	require.NoError(t, sink.Write(context.Background(), nil))

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Zurzeit ist nichts verfügbar.")
}

func TestTableSink_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableSink(&buf).Write(context.Background(), sampleItems()))

	out := buf.String()
	assert.Contains(t, out, "GEO 1")
	assert.NotContains(t, out, "1 @ GEO 1", "signature prefix is stripped")
	assert.Contains(t, out, "[Spiel]")
	assert.Contains(t, out, "Wandsbek")
	assert.Contains(t, out, "Vergriffen")
}

func TestMulti_StopsAtFirstError(t *testing.T) {
	var calls []string
	record := func(name string, err error) Sink {
		return SinkFunc(func(context.Context, []media.Item) error {
			calls = append(calls, name)
			return err
		})
	}
	boom := errors.New("boom")

	err := Multi{record("a", nil), record("b", boom), record("c", nil)}.Write(context.Background(), nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, calls)
}
