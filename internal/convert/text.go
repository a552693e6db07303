package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// TextBackend extracts the native text layer of a PDF. Preferred over the
// office backend for pdf→txt because it needs no subprocess and keeps page
// breaks.
type TextBackend struct{}

// NewTextBackend creates the text-layer backend.
func NewTextBackend() *TextBackend {
	return &TextBackend{}
}

// Supports reports whether this backend handles the pair.
func (b *TextBackend) Supports(from, to Format) bool {
	return from == FormatPDF && to == FormatTXT
}

// Convert writes the PDF's text layer to a .txt file, pages separated by
// form feeds.
func (b *TextBackend) Convert(ctx context.Context, inputPath, outDir string, from, to Format) (string, error) {
	if !b.Supports(from, to) {
		return "", domain.UnsupportedFormatPair(string(from), string(to))
	}

	text, err := ExtractText(ctx, inputPath)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, outputName(inputPath, FormatTXT))
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

// ExtractText returns the native text layer of a PDF. An empty string with a
// nil error means the document carries no text layer; callers fall back to
// OCR where that matters.
func ExtractText(ctx context.Context, pdfPath string) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", domain.UnreadableDocument("open pdf for text extraction", err)
	}
	defer doc.Close()

	var b strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(n)
		if err != nil {
			continue
		}
		if n > 0 {
			b.WriteString("\f")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// PageCount returns the page count of a PDF file.
func PageCount(pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, domain.UnreadableDocument("open pdf for page count", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
