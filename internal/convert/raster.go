package convert

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// RasterBackend handles image⇄PDF conversions: PDF pages render through
// MuPDF, images wrap into PDF pages via pdfcpu.
type RasterBackend struct {
	dpi int
}

// NewRasterBackend creates the raster backend.
func NewRasterBackend(dpi int) *RasterBackend {
	if dpi <= 0 {
		dpi = 150
	}
	return &RasterBackend{dpi: dpi}
}

// Supports reports whether this backend handles the pair.
func (b *RasterBackend) Supports(from, to Format) bool {
	return (from == FormatPDF && IsImage(to)) || (IsImage(from) && to == FormatPDF)
}

// Convert converts between PDF and raster images. PDF→image renders the
// first page; multi-page rasterization is a per-page loop in callers that
// need it.
func (b *RasterBackend) Convert(ctx context.Context, inputPath, outDir string, from, to Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch {
	case from == FormatPDF && IsImage(to):
		return b.renderPage(inputPath, outDir, to, 0)
	case IsImage(from) && to == FormatPDF:
		return b.wrapImages(inputPath, outDir)
	}
	return "", domain.UnsupportedFormatPair(string(from), string(to))
}

// RenderPage rasterizes one 0-based page of a PDF to an image file. Shared
// with the OCR pipeline, which feeds page images to tesseract.
func (b *RasterBackend) RenderPage(ctx context.Context, pdfPath, outDir string, format Format, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.renderPage(pdfPath, outDir, format, page)
}

func (b *RasterBackend) renderPage(pdfPath, outDir string, format Format, page int) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", domain.UnreadableDocument("open pdf for rasterization", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return "", domain.InvalidInput(fmt.Sprintf("page %d out of range (%d pages)", page+1, doc.NumPage()))
	}

	img, err := doc.ImageDPI(page, float64(b.dpi))
	if err != nil {
		return "", domain.BackendCrashed("rasterizer", err)
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	outPath := filepath.Join(outDir, fmt.Sprintf("%s-p%d.%s", base, page+1, format))
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch format {
	case FormatPNG:
		err = png.Encode(f, img)
	case FormatJPG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case FormatTIFF:
		err = tiff.Encode(f, img, nil)
	default:
		return "", domain.UnsupportedFormatPair(string(FormatPDF), string(format))
	}
	if err != nil {
		return "", domain.BackendCrashed("image encoder", err)
	}
	return outPath, nil
}

func (b *RasterBackend) wrapImages(inputPath, outDir string) (string, error) {
	outPath := filepath.Join(outDir, outputName(inputPath, FormatPDF))
	if err := api.ImportImagesFile([]string{inputPath}, outPath, nil, nil); err != nil {
		return "", domain.BackendCrashed("pdfcpu import", err)
	}
	return outPath, nil
}
