package extract

import (
	"context"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/domain"
)

func testExtractor() *Extractor {
	return New(config.ExtractConfig{}, nil)
}

func glyph(s string, x, y, w, size float64) pdf.Text {
	return pdf.Text{Font: "Helvetica", FontSize: size, X: x, Y: y, W: w, S: s}
}

func TestExtractor_Extract_RejectsGarbage(t *testing.T) {
	_, err := testExtractor().Extract(context.Background(), []byte("not a pdf at all"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindUnreadableDocument, domain.KindOf(err))
}

func TestGroupRuns_MergesAdjacentGlyphs(t *testing.T) {
	e := testExtractor()

	// "Hi" as two glyphs on one baseline, touching.
	glyphs := []pdf.Text{
		glyph("H", 100, 700, 8, 12),
		glyph("i", 108, 700, 4, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 1)
	assert.Equal(t, "Hi", elements[0].Text)
	assert.Equal(t, 1, elements[0].Page)
	assert.InDelta(t, 100, elements[0].Box.X, 1e-9)
	assert.InDelta(t, 700, elements[0].Box.Y, 1e-9)
	assert.InDelta(t, 12, elements[0].Box.Width, 1e-9)
	assert.InDelta(t, 12, elements[0].Box.Height, 1e-9)
}

func TestGroupRuns_WordGapInsertsSpace(t *testing.T) {
	e := testExtractor()

	// Gap of 4pt at size 12 is a word space, not a run break.
	glyphs := []pdf.Text{
		glyph("Hello", 100, 700, 30, 12),
		glyph("World", 134, 700, 30, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 1)
	assert.Equal(t, "Hello World", elements[0].Text)
}

func TestGroupRuns_SplitsLines(t *testing.T) {
	e := testExtractor()

	glyphs := []pdf.Text{
		glyph("first line", 100, 700, 60, 12),
		glyph("second line", 100, 680, 66, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 2)
	assert.Equal(t, "first line", elements[0].Text)
	assert.Equal(t, "second line", elements[1].Text)
	assert.Greater(t, elements[0].Box.Y, elements[1].Box.Y, "reading order is top-to-bottom")
}

func TestGroupRuns_SplitsOnWideGap(t *testing.T) {
	e := testExtractor()

	// 100pt apart on one baseline: separate columns, separate runs.
	glyphs := []pdf.Text{
		glyph("left", 100, 700, 24, 12),
		glyph("right", 224, 700, 30, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 2)
}

func TestGroupRuns_SplitsOnFontChange(t *testing.T) {
	e := testExtractor()

	a := glyph("plain", 100, 700, 30, 12)
	b := glyph("bold", 131, 700, 26, 12)
	b.Font = "Helvetica-Bold"
	elements := e.groupRuns(1, []pdf.Text{a, b})
	require.Len(t, elements, 2)
}

func TestGroupRuns_SortsOutOfOrderInput(t *testing.T) {
	e := testExtractor()

	glyphs := []pdf.Text{
		glyph("bottom", 100, 100, 36, 12),
		glyph("top", 100, 700, 18, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 2)
	assert.Equal(t, "top", elements[0].Text)
	assert.Equal(t, "bottom", elements[1].Text)
}

func TestGroupRuns_DropsWhitespaceOnlyRuns(t *testing.T) {
	e := testExtractor()

	glyphs := []pdf.Text{
		glyph("  ", 100, 700, 6, 12),
		glyph("real", 100, 650, 24, 12),
	}
	elements := e.groupRuns(1, glyphs)
	require.Len(t, elements, 1)
	assert.Equal(t, "real", elements[0].Text)
}

func TestGroupRuns_ZeroFontSizeUsesDefault(t *testing.T) {
	e := testExtractor()

	elements := e.groupRuns(1, []pdf.Text{glyph("x", 10, 10, 6, 0)})
	require.Len(t, elements, 1)
	assert.InDelta(t, 12, elements[0].FontSize, 1e-9)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText(nil))
	assert.Equal(t, "", PlainText(&domain.ExtractionResult{}))

	result := &domain.ExtractionResult{Elements: []domain.TextElement{
		{Page: 1, Text: "line one"},
		{Page: 1, Text: "line two"},
		{Page: 2, Text: "next page"},
	}}
	assert.Equal(t, "line one\nline two\n\nnext page", PlainText(result))
}
