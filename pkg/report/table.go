package report

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
)

// TableSink prints one row per item with the branches that have a free copy.
type TableSink struct {
	Out   io.Writer
	Style table.Style
}

// NewTableSink creates a table sink writing to out (stdout when nil).
func NewTableSink(out io.Writer) *TableSink {
	if out == nil {
		out = os.Stdout
	}
	return &TableSink{Out: out, Style: table.StyleRounded}
}

// Write implements Sink.
func (s *TableSink) Write(_ context.Context, items []media.Item) error {
	t := table.NewWriter()
	t.SetOutputMirror(s.Out)
	t.SetStyle(s.Style)
	t.AppendHeader(table.Row{"Signatur", "Titel", "Autor", "Verfügbar in"})

	available := 0
	for _, item := range items {
		locations := item.Availabilities.AvailableLocations()
		if len(locations) > 0 {
			available++
		}
		title := item.Title
		if item.IsVideoGame() {
			title += " [Spiel]"
		}
		where := strings.Join(locations, ", ")
		if where == "" {
			where = "-"
		}
		t.AppendRow(table.Row{item.CleanSignature(), title, item.Author, where})
	}

	t.AppendFooter(table.Row{"", "", "Verfügbar", available})
	t.Render()
	return nil
}
