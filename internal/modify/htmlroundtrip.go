package modify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// HTMLStrategy round-trips the document through positioned HTML: MuPDF
// renders each page to absolutely positioned markup, the modifications apply
// as markup edits, and wkhtmltopdf re-renders the result. Sub-pixel layout
// drift is expected and bounded; callers opt into this strategy explicitly
// for bulk edits.
type HTMLStrategy struct {
	binary  string
	timeout time.Duration
	tempDir string
}

// NewHTMLStrategy creates the HTML round-trip strategy.
func NewHTMLStrategy(binary string, timeout time.Duration, tempDir string) *HTMLStrategy {
	if binary == "" {
		binary = "wkhtmltopdf"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &HTMLStrategy{binary: binary, timeout: timeout, tempDir: tempDir}
}

// Name identifies the strategy.
func (s *HTMLStrategy) Name() StrategyName { return StrategyHTML }

// Apply converts pages to HTML, edits them, and re-renders to PDF.
func (s *HTMLStrategy) Apply(ctx context.Context, data []byte, mods []domain.Modification) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.UnreadableDocument("open pdf for html round trip", err)
	}
	defer doc.Close()

	byPage := make(map[int][]domain.Modification)
	for _, mod := range mods {
		if err := mod.Validate(); err != nil {
			return nil, err
		}
		if mod.Page < 1 || mod.Page > doc.NumPage() {
			return nil, domain.InvalidInput(fmt.Sprintf("page %d out of range (%d pages)", mod.Page, doc.NumPage()))
		}
		byPage[mod.Page] = append(byPage[mod.Page], mod)
	}

	bound, err := doc.Bound(0)
	if err != nil {
		return nil, domain.UnreadableDocument("read page bounds", err)
	}
	pageWidth := float64(bound.Dx())
	pageHeight := float64(bound.Dy())

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("body{margin:0;padding:0}")
	fmt.Fprintf(&b, ".page{position:relative;width:%spt;height:%spt;overflow:hidden;page-break-after:always}",
		formatFloat(pageWidth), formatFloat(pageHeight))
	b.WriteString("</style></head><body>")

	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageHTML, err := doc.HTML(n, false)
		if err != nil {
			return nil, domain.UnreadableDocument(fmt.Sprintf("render page %d to html", n+1), err)
		}

		pageHTML, err = editPageHTML(pageHTML, pageHeight, byPage[n+1])
		if err != nil {
			return nil, err
		}

		b.WriteString("<div class=\"page\">")
		b.WriteString(pageHTML)
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")

	return s.render(ctx, b.String(), pageWidth, pageHeight)
}

// editPageHTML applies one page's modifications to its markup. Replacement
// and redaction operate on the text content; additions insert absolutely
// positioned elements using the top-left-origin transform
// yHTML = pageHeight − yPDF − height.
func editPageHTML(pageHTML string, pageHeight float64, mods []domain.Modification) (string, error) {
	for _, mod := range mods {
		switch mod.Type {
		case domain.ModificationReplace:
			if !strings.Contains(pageHTML, htmlEscape(mod.OldText)) {
				return "", domain.ModificationRegionMismatch(
					fmt.Sprintf("text %q not found in page markup", mod.OldText))
			}
			pageHTML = strings.Replace(pageHTML, htmlEscape(mod.OldText), htmlEscape(mod.NewText), 1)
		case domain.ModificationRedact:
			if !strings.Contains(pageHTML, htmlEscape(mod.OldText)) {
				return "", domain.ModificationRegionMismatch(
					fmt.Sprintf("text %q not found in page markup", mod.OldText))
			}
			pageHTML = strings.Replace(pageHTML, htmlEscape(mod.OldText), "", 1)
		case domain.ModificationAdd:
			size := mod.FontSize
			if size <= 0 {
				size = 12
			}
			top := PDFToHTMLY(mod.Box.Y, mod.Box.Height, pageHeight)
			el := fmt.Sprintf(
				`<p style="position:absolute;left:%spt;top:%spt;margin:0;font-size:%spt;color:%s">%s</p>`,
				formatFloat(mod.Box.X), formatFloat(top), formatFloat(size),
				hexColor(mod.Color), htmlEscape(mod.NewText))
			pageHTML += el
		}
	}
	return pageHTML, nil
}

// PDFToHTMLY converts a PDF user-space y (bottom-left origin, y up) to a CSS
// top offset (top-left origin, y down) for a box of the given height.
func PDFToHTMLY(yPDF, height, pageHeight float64) float64 {
	return pageHeight - yPDF - height
}

// HTMLToPDFY is the inverse transform, converting a CSS top offset back to
// PDF user space.
func HTMLToPDFY(yHTML, height, pageHeight float64) float64 {
	return pageHeight - yHTML - height
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// render runs wkhtmltopdf over the assembled markup.
func (s *HTMLStrategy) render(ctx context.Context, html string, widthPt, heightPt float64) ([]byte, error) {
	work, err := os.MkdirTemp(s.tempDir, "htmlpdf-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)

	inPath := filepath.Join(work, "in.html")
	outPath := filepath.Join(work, "out.pdf")
	if err := os.WriteFile(inPath, []byte(html), 0o600); err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// wkhtmltopdf takes physical sizes in millimeters.
	args := []string{
		"--quiet",
		"--margin-top", "0", "--margin-bottom", "0",
		"--margin-left", "0", "--margin-right", "0",
		"--page-width", fmt.Sprintf("%.2fmm", widthPt*25.4/72),
		"--page-height", fmt.Sprintf("%.2fmm", heightPt*25.4/72),
		inPath, outPath,
	}
	cmd := exec.CommandContext(ctx, s.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.BackendTimeout("wkhtmltopdf", ctx.Err())
		}
		return nil, domain.BackendCrashed("wkhtmltopdf",
			fmt.Errorf("%w: %s", err, truncateOutput(string(output))))
	}

	return os.ReadFile(outPath)
}

func truncateOutput(s string) string {
	if len(s) <= 512 {
		return s
	}
	return s[:512] + "..."
}
