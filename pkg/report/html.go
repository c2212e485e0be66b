package report

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/media"
)

const (
	// IndexFile is the name of the rendered page inside the output directory.
	IndexFile = "index.html"

	timestampLayout = "02.01.2006 15:04"
)

//go:embed templates/index.html.tmpl
var indexTemplate string

var indexTmpl = template.Must(template.New(IndexFile).Parse(indexTemplate))

// HTMLSink renders the availability page into Dir.
type HTMLSink struct {
	Dir string

	// Location is the zone of the generation timestamp; nil means Europe/Berlin.
	Location *time.Location

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	logger zerolog.Logger
}

// NewHTMLSink creates a sink writing to dir/index.html.
func NewHTMLSink(dir string) *HTMLSink {
	return &HTMLSink{
		Dir:    dir,
		logger: logging.NewLogger("html-report"),
	}
}

type indexData struct {
	GeneratedAt string
	Total       int
	Groups      []LocationGroup
}

// Write renders items and replaces the page.
func (s *HTMLSink) Write(_ context.Context, items []media.Item) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	loc := s.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("Europe/Berlin"); err != nil {
			return fmt.Errorf("load time zone: %w", err)
		}
	}

	data := indexData{
		GeneratedAt: now().In(loc).Format(timestampLayout),
		Total:       len(items),
		Groups:      GroupByLocation(items),
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", IndexFile, err)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(s.Dir, IndexFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("items", len(items)).
		Int("locations", len(data.Groups)).
		Msg("Report written")
	return nil
}
