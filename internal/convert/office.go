package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
)

// officeFilter names the LibreOffice input/output filters for a pair.
type officeFilter struct {
	input  string
	output string
}

// officeFilters keys are "<from>_to_<to>". Pairs absent here still convert
// when LibreOffice can infer the filters from the extension.
var officeFilters = map[string]officeFilter{
	"pdf_to_docx": {input: "writer_pdf_import", output: "MS Word 2007 XML"},
	"pdf_to_doc":  {input: "writer_pdf_import", output: "MS Word 97"},
	"pdf_to_pptx": {input: "impress_pdf_import", output: "Impress MS PowerPoint 2007 XML"},
	"pdf_to_ppt":  {input: "impress_pdf_import", output: "MS PowerPoint 97"},
	"pdf_to_odt":  {input: "writer_pdf_import", output: "writer8"},
	"pdf_to_odp":  {input: "impress_pdf_import", output: "impress8"},
	"pdf_to_html": {input: "writer_pdf_import", output: "HTML"},
	"pdf_to_txt":  {input: "writer_pdf_import", output: "Text"},

	"html_to_pdf": {input: "HTML", output: "writer_pdf_Export"},
	"txt_to_pdf":  {input: "Text", output: "writer_pdf_Export"},

	"docx_to_pdf": {output: "writer_pdf_Export"},
	"doc_to_pdf":  {output: "writer_pdf_Export"},
	"odt_to_pdf":  {output: "writer_pdf_Export"},
	"xlsx_to_pdf": {output: "calc_pdf_Export"},
	"xls_to_pdf":  {output: "calc_pdf_Export"},
	"ods_to_pdf":  {output: "calc_pdf_Export"},
	"csv_to_pdf":  {output: "calc_pdf_Export"},
	"pptx_to_pdf": {output: "impress_pdf_Export"},
	"ppt_to_pdf":  {output: "impress_pdf_Export"},
	"odp_to_pdf":  {output: "impress_pdf_Export"},

	"docx_to_odt": {output: "writer8"},
	"xlsx_to_ods": {output: "calc8"},
	"pptx_to_odp": {output: "impress8"},
	"odt_to_docx": {output: "MS Word 2007 XML"},
	"ods_to_xlsx": {output: "Calc MS Excel 2007 XML"},
	"odp_to_pptx": {output: "Impress MS PowerPoint 2007 XML"},
}

// OfficeBackend converts office documents through a headless LibreOffice
// subprocess. Each invocation gets a throwaway user profile so parallel
// conversions do not fight over the profile lock.
type OfficeBackend struct {
	binary  string
	timeout time.Duration
	logger  *observability.Logger
}

// NewOfficeBackend creates the LibreOffice backend.
func NewOfficeBackend(binary string, timeout time.Duration, logger *observability.Logger) *OfficeBackend {
	if binary == "" {
		binary = "soffice"
	}
	return &OfficeBackend{binary: binary, timeout: timeout, logger: logger}
}

// Supports reports whether this backend handles the pair directly.
func (b *OfficeBackend) Supports(from, to Format) bool {
	if _, ok := officeFilters[pairKey(from, to)]; ok {
		return true
	}
	// soffice converts any office input to pdf without an explicit filter
	return IsOffice(from) && to == FormatPDF
}

func pairKey(from, to Format) string {
	return string(from) + "_to_" + string(to)
}

// Convert runs one LibreOffice conversion. The output lands in outDir named
// after the input base with the target extension.
func (b *OfficeBackend) Convert(ctx context.Context, inputPath, outDir string, from, to Format) (string, error) {
	profile, err := os.MkdirTemp("", "soffice-profile-*")
	if err != nil {
		return "", fmt.Errorf("create office profile: %w", err)
	}
	defer os.RemoveAll(profile)

	convertTo := string(to)
	var args []string
	args = append(args,
		"--headless", "--invisible", "--nodefault",
		"--nolockcheck", "--nologo", "--norestore",
		"-env:UserInstallation=file://"+profile,
	)
	if filter, ok := officeFilters[pairKey(from, to)]; ok {
		if filter.input != "" {
			args = append(args, "--infilter="+filter.input)
		}
		if filter.output != "" {
			convertTo = fmt.Sprintf("%s:%s", to, filter.output)
		}
	}
	args = append(args, "--convert-to", convertTo, "--outdir", outDir, inputPath)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.BackendTimeout("libreoffice", ctx.Err())
		}
		return "", domain.BackendCrashed("libreoffice",
			fmt.Errorf("%w: %s", err, truncate(string(output), 512)))
	}

	outPath := filepath.Join(outDir, outputName(inputPath, to))
	if _, err := os.Stat(outPath); err != nil {
		return "", domain.BackendCrashed("libreoffice",
			fmt.Errorf("expected output %s missing: %s", outPath, truncate(string(output), 512)))
	}

	if b.logger != nil {
		b.logger.Debug().
			Str("from", string(from)).
			Str("to", string(to)).
			Str("output", outPath).
			Msg("libreoffice conversion finished")
	}
	return outPath, nil
}

func outputName(inputPath string, to Format) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + string(to)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
