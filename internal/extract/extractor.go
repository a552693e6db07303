// Package extract implements positioned text extraction from PDF documents.
//
// Coordinates are reported in PDF user space (origin bottom-left, y up), the
// same space the modify package consumes, so extraction output feeds directly
// back into modification requests.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
)

// Extractor produces ordered positioned text elements from PDF bytes.
type Extractor struct {
	cfg    config.ExtractConfig
	logger *observability.Logger
}

// New creates an extractor.
func New(cfg config.ExtractConfig, logger *observability.Logger) *Extractor {
	if cfg.DefaultFontSize <= 0 {
		cfg.DefaultFontSize = 12.0
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract parses the PDF and returns its text elements ordered by page, then
// top-to-bottom, left-to-right. The input is never mutated. Pages that fail
// to parse are skipped and counted; a document that cannot be opened at all
// fails with an unreadable-document error.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*domain.ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.UnreadableDocument("open pdf", err)
	}

	numPages := reader.NumPage()
	if e.cfg.MaxPages > 0 && numPages > e.cfg.MaxPages {
		numPages = e.cfg.MaxPages
	}

	result := &domain.ExtractionResult{PageCount: reader.NumPage()}
	for n := 1; n <= numPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		elements, err := e.extractPage(reader, n)
		if err != nil {
			result.SkippedPages++
			if e.logger != nil {
				e.logger.Warn().Int("page", n).Err(err).Msg("page extraction skipped")
			}
			continue
		}
		result.Elements = append(result.Elements, elements...)
	}

	if result.SkippedPages == reader.NumPage() && reader.NumPage() > 0 {
		return nil, domain.UnreadableDocument("all pages unparsable", nil)
	}
	return result, nil
}

// extractPage pulls the glyph runs of one page and groups them into line
// runs. The underlying parser panics on some malformed content streams, so
// the panic is converted into a per-page error.
func (e *Extractor) extractPage(reader *pdf.Reader, pageNum int) (elements []domain.TextElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			elements = nil
			err = fmt.Errorf("page %d: content parse panic: %v", pageNum, r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", pageNum)
	}

	content := page.Content()
	return e.groupRuns(pageNum, content.Text), nil
}

// groupRuns merges per-glyph fragments into reading-order line runs. Two
// fragments join when they share a baseline and the horizontal gap is small
// relative to the font size.
func (e *Extractor) groupRuns(pageNum int, glyphs []pdf.Text) []domain.TextElement {
	if len(glyphs) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y // higher on page first
		}
		return sorted[i].X < sorted[j].X
	})

	var elements []domain.TextElement
	var run *domain.TextElement
	var runEnd float64

	flush := func() {
		if run != nil && strings.TrimSpace(run.Text) != "" {
			run.Box.Width = runEnd - run.Box.X
			elements = append(elements, *run)
		}
		run = nil
	}

	for _, g := range sorted {
		size := g.FontSize
		if size <= 0 {
			size = e.cfg.DefaultFontSize
		}

		sameLine := run != nil &&
			abs(g.Y-run.Box.Y) <= size*0.3 &&
			g.X >= runEnd-size*0.1 &&
			g.X-runEnd <= size*0.75 &&
			g.Font == run.Font

		if sameLine {
			if g.X-runEnd > size*0.2 {
				run.Text += " "
			}
			run.Text += g.S
			runEnd = g.X + g.W
			continue
		}

		flush()
		run = &domain.TextElement{
			Page: pageNum,
			Type: domain.ElementTypeText,
			Box: domain.Rect{
				X:      g.X,
				Y:      g.Y,
				Height: size,
			},
			Text:     g.S,
			Font:     g.Font,
			FontSize: size,
		}
		runEnd = g.X + g.W
	}
	flush()

	return elements
}

// PlainText joins extracted elements into plain text, one line per run,
// blank line between pages. Used by the content indexer's native path.
func PlainText(result *domain.ExtractionResult) string {
	if result == nil || len(result.Elements) == 0 {
		return ""
	}

	var b strings.Builder
	lastPage := result.Elements[0].Page
	for i, el := range result.Elements {
		if el.Page != lastPage {
			b.WriteString("\n\n")
			lastPage = el.Page
		} else if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(el.Text)
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
