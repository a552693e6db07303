// Package indexer builds the searchable text for stored documents. Native
// text layers are preferred; image-only pages fall back to OCR. Indexing is
// best effort and never fails the surrounding job.
package indexer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/observability"
)

// Outcome describes how a document's index text was produced.
type Outcome struct {
	Text         string
	NativeChars  int
	OCRAttempted bool
	OCRFailed    bool
	Truncated    bool
}

// Indexer extracts and normalizes searchable text from PDFs.
type Indexer struct {
	cfg    config.IndexerConfig
	ocr    config.OCRConfig
	raster *convert.RasterBackend
	logger *observability.Logger
}

// New creates an Indexer. The raster backend renders pages for OCR input.
func New(cfg config.IndexerConfig, ocr config.OCRConfig, raster *convert.RasterBackend, logger *observability.Logger) *Indexer {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Indexer{cfg: cfg, ocr: ocr, raster: raster, logger: logger.WithComponent("indexer")}
}

// Index extracts text from the PDF at pdfPath. When the native text layer
// holds fewer than the configured minimum characters the pages are rendered
// and run through tesseract. OCR failure leaves the native text in place.
func (ix *Indexer) Index(ctx context.Context, pdfPath string) (*Outcome, error) {
	native, err := convert.ExtractText(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	native = Normalize(native)

	out := &Outcome{Text: native, NativeChars: len(native)}
	if len(native) >= ix.cfg.MinNativeChars {
		out.Text, out.Truncated = capBytes(native, ix.cfg.MaxIndexBytes)
		return out, nil
	}

	out.OCRAttempted = true
	ocrText, err := ix.ocrDocument(ctx, pdfPath)
	if err != nil {
		ix.logger.Warn().Err(err).Str("path", filepath.Base(pdfPath)).Msg("ocr failed, keeping native text")
		out.OCRFailed = true
		out.Text, out.Truncated = capBytes(native, ix.cfg.MaxIndexBytes)
		return out, nil
	}

	ocrText = Normalize(ocrText)
	if len(ocrText) > len(native) {
		out.Text = ocrText
	}
	out.Text, out.Truncated = capBytes(out.Text, ix.cfg.MaxIndexBytes)
	return out, nil
}

// ocrDocument renders every page to PNG and runs tesseract over each one.
func (ix *Indexer) ocrDocument(ctx context.Context, pdfPath string) (string, error) {
	pages, err := convert.PageCount(pdfPath)
	if err != nil {
		return "", err
	}

	work, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(work)

	var parts []string
	for page := 0; page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		imgPath, err := ix.raster.RenderPage(ctx, pdfPath, work, convert.FormatPNG, page)
		if err != nil {
			return "", fmt.Errorf("render page %d: %w", page+1, err)
		}
		text, err := ix.ocrPage(ctx, imgPath)
		if err != nil {
			return "", fmt.Errorf("ocr page %d: %w", page+1, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (ix *Indexer) ocrPage(ctx context.Context, imgPath string) (string, error) {
	if ix.ocr.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.ocr.PageTimeout)
		defer cancel()
	}

	binary := ix.ocr.TesseractPath
	if binary == "" {
		binary = "tesseract"
	}
	// "stdout" makes tesseract print the recognized text instead of writing
	// a sidecar file.
	args := []string{imgPath, "stdout", "-l", ix.ocr.Language, "--dpi", fmt.Sprintf("%d", ix.ocr.DPI)}
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(output), nil
}

// Normalize collapses runs of whitespace to single spaces, preserves
// paragraph breaks, and strips non-printable characters.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	newlines := 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlines++
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPrint(r):
			if newlines > 0 {
				if b.Len() > 0 {
					if newlines > 1 {
						b.WriteString("\n\n")
					} else {
						b.WriteByte('\n')
					}
				}
				newlines = 0
				space = false
			} else if space {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// capBytes truncates s to at most max bytes on a rune boundary.
func capBytes(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
