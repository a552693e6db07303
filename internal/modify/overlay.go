package modify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// OverlayStrategy stamps new content on top of the existing page: a white-
// backed text box masks the old region, the replacement text renders over
// it. The original content-stream bytes survive underneath, which is why
// redact never uses this strategy on its own.
type OverlayStrategy struct {
	tempDir string
}

// NewOverlayStrategy creates the overlay strategy. tempDir holds the
// intermediate files pdfcpu works on.
func NewOverlayStrategy(tempDir string) *OverlayStrategy {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &OverlayStrategy{tempDir: tempDir}
}

// Name identifies the strategy.
func (s *OverlayStrategy) Name() StrategyName { return StrategyOverlay }

// Apply stamps each modification onto its page and returns the new bytes.
func (s *OverlayStrategy) Apply(ctx context.Context, data []byte, mods []domain.Modification) ([]byte, error) {
	work, err := os.MkdirTemp(s.tempDir, "overlay-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)

	current := filepath.Join(work, "in.pdf")
	if err := os.WriteFile(current, data, 0o600); err != nil {
		return nil, err
	}

	for i, mod := range mods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := mod.Validate(); err != nil {
			return nil, err
		}
		if mod.Type == domain.ModificationRedact {
			return nil, domain.InvalidInput(
				"overlay cannot satisfy redact: old bytes would survive under the mask")
		}

		next := filepath.Join(work, fmt.Sprintf("step-%d.pdf", i))
		if err := s.stamp(current, next, mod); err != nil {
			return nil, err
		}
		current = next
	}

	return os.ReadFile(current)
}

// stamp applies one modification as a pdfcpu text stamp anchored at the
// box's lower-left corner in points.
func (s *OverlayStrategy) stamp(inFile, outFile string, mod domain.Modification) error {
	size := mod.FontSize
	if size <= 0 {
		size = 12
	}

	desc := fmt.Sprintf(
		"fontname:Helvetica, points:%s, scale:1 abs, pos:bl, off:%s %s, fillcol:%s, rot:0, op:1",
		formatFloat(size),
		formatFloat(mod.Box.X), formatFloat(mod.Box.Y),
		hexColor(mod.Color),
	)
	if mod.Type == domain.ModificationReplace {
		// White background masks the region being replaced.
		desc += ", bgcol:#ffffff"
	}

	wm, err := api.TextWatermark(mod.NewText, desc, true, false, types.POINTS)
	if err != nil {
		return domain.NewError(domain.ErrorKindInternal, "build overlay stamp", err)
	}

	pages := []string{strconv.Itoa(mod.Page)}
	if err := api.AddWatermarksFile(inFile, outFile, pages, wm, nil); err != nil {
		return domain.UnreadableDocument("stamp overlay", err)
	}
	return nil
}

func hexColor(c domain.Color) string {
	clamp := func(v float64) int {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 255
		}
		return int(v * 255)
	}
	return fmt.Sprintf("#%02x%02x%02x", clamp(c.R), clamp(c.G), clamp(c.B))
}
