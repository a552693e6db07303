package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
)

// Options carries per-conversion tuning passed through from the request.
type Options struct {
	// Page selects the page for PDF→image conversions, 1-based. Zero means
	// the first page.
	Page int `json:"page,omitempty"`
}

// Backend is one format-specific converter. Implementations must be
// idempotent: converting the same input twice yields equivalent output.
type Backend interface {
	Supports(from, to Format) bool
	Convert(ctx context.Context, inputPath, outDir string, from, to Format) (string, error)
}

// Engine routes conversions to backends, normalizing everything through PDF:
// a pair with no direct backend converts from→pdf then pdf→to, two hops.
type Engine struct {
	office *OfficeBackend
	raster *RasterBackend
	text   *TextBackend
	logger *observability.Logger
}

// NewEngine wires the backends from config.
func NewEngine(cfg config.ConvertConfig, logger *observability.Logger) *Engine {
	return &Engine{
		office: NewOfficeBackend(cfg.LibreOfficePath, cfg.HopTimeout, logger),
		raster: NewRasterBackend(cfg.RasterDPI),
		text:   NewTextBackend(),
		logger: logger,
	}
}

// backends in lookup order. Text before office so pdf→txt avoids the
// subprocess; office last because its Supports is the broadest.
func (e *Engine) backends() []Backend {
	return []Backend{e.text, e.raster, e.office}
}

// Raster exposes the raster backend for callers that render page images
// directly (thumbnails, OCR input).
func (e *Engine) Raster() *RasterBackend {
	return e.raster
}

// Convert transforms inputPath from one format to another and returns the
// output path inside outDir. Fails with an unsupported-format-pair error
// when no backend chain covers the pair.
func (e *Engine) Convert(ctx context.Context, inputPath, outDir string, from, to Format, opts Options) (string, error) {
	from, to = Normalize(string(from)), Normalize(string(to))
	if !Known(from) || !Known(to) {
		return "", domain.UnsupportedFormatPair(string(from), string(to))
	}
	if from == to {
		return copyFile(inputPath, filepath.Join(outDir, filepath.Base(inputPath)))
	}

	if opts.Page > 0 && from == FormatPDF && IsImage(to) {
		return e.raster.RenderPage(ctx, inputPath, outDir, to, opts.Page-1)
	}

	if backend := e.lookup(from, to); backend != nil {
		return backend.Convert(ctx, inputPath, outDir, from, to)
	}

	// Two-hop through PDF.
	first := e.lookup(from, FormatPDF)
	second := e.lookup(FormatPDF, to)
	if first == nil || second == nil {
		return "", domain.UnsupportedFormatPair(string(from), string(to))
	}

	hopDir, err := os.MkdirTemp(outDir, "hop-*")
	if err != nil {
		return "", fmt.Errorf("create hop dir: %w", err)
	}
	defer os.RemoveAll(hopDir)

	intermediate, err := first.Convert(ctx, inputPath, hopDir, from, FormatPDF)
	if err != nil {
		return "", err
	}
	if e.logger != nil {
		e.logger.Debug().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("intermediate pdf produced, starting second hop")
	}
	return second.Convert(ctx, intermediate, outDir, FormatPDF, to)
}

func (e *Engine) lookup(from, to Format) Backend {
	if from == to {
		return nil
	}
	for _, b := range e.backends() {
		if b.Supports(from, to) {
			return b
		}
	}
	return nil
}

func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	return dst, nil
}
