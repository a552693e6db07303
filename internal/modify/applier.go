package modify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/extract"
	"github.com/docuforge/conversion-engine/internal/observability"
)

// StrategyName identifies a modification strategy.
type StrategyName string

const (
	// StrategyDirect rewrites content streams in place via an incremental
	// update. Preserves the original layout exactly and is the only strategy
	// that can truly remove bytes for redaction.
	StrategyDirect StrategyName = "direct"
	// StrategyOverlay stamps new content on top of existing pages. Works on
	// any well-formed file but cannot remove the bytes underneath.
	StrategyOverlay StrategyName = "overlay"
	// StrategyHTML round-trips pages through positioned HTML. Lossy; never
	// chosen automatically.
	StrategyHTML StrategyName = "html"
)

// Strategy applies a batch of modifications to a PDF.
type Strategy interface {
	Name() StrategyName
	Apply(ctx context.Context, data []byte, mods []domain.Modification) ([]byte, error)
}

// Result reports which strategy produced the output.
type Result struct {
	Data     []byte
	Strategy StrategyName
}

// Applier selects a strategy per batch: direct rewrite first, overlay as the
// fallback when the file's internals defeat the rewriter, HTML only on
// request. Redaction never falls back, since an overlay would leave the
// redacted bytes recoverable.
type Applier struct {
	direct    Strategy
	overlay   Strategy
	html      Strategy
	extractor *extract.Extractor
	logger    *observability.Logger
}

// NewApplier wires the three strategies.
func NewApplier(direct, overlay, html Strategy, extractor *extract.Extractor, logger *observability.Logger) *Applier {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Applier{
		direct:    direct,
		overlay:   overlay,
		html:      html,
		extractor: extractor,
		logger:    logger.WithComponent("modify"),
	}
}

// Apply runs the batch. When force names a strategy, only that strategy runs.
func (a *Applier) Apply(ctx context.Context, data []byte, mods []domain.Modification, force StrategyName) (*Result, error) {
	if len(mods) == 0 {
		return &Result{Data: data, Strategy: ""}, nil
	}
	for i, mod := range mods {
		if err := mod.Validate(); err != nil {
			return nil, domain.InvalidInput(fmt.Sprintf("modification %d: %v", i, err))
		}
	}

	if force != "" {
		strat, err := a.strategy(force)
		if err != nil {
			return nil, err
		}
		out, err := strat.Apply(ctx, data, mods)
		if err != nil {
			return nil, err
		}
		return a.finish(ctx, out, mods, force)
	}

	out, err := a.direct.Apply(ctx, data, mods)
	if err == nil {
		return a.finish(ctx, out, mods, StrategyDirect)
	}
	if !fallbackEligible(err) {
		return nil, err
	}
	if hasRedaction(mods) {
		// An overlay leaves the original bytes in the file, which defeats
		// redaction. Surface the structural limitation instead.
		return nil, domain.NewError(domain.ErrorKindModificationRegionMismatch,
			"document structure prevents in-place redaction", err)
	}

	a.logger.Warn().Err(err).Msg("direct rewrite unsupported, falling back to overlay")
	out, err = a.overlay.Apply(ctx, data, mods)
	if err != nil {
		return nil, err
	}
	return a.finish(ctx, out, mods, StrategyOverlay)
}

func (a *Applier) strategy(name StrategyName) (Strategy, error) {
	switch name {
	case StrategyDirect:
		return a.direct, nil
	case StrategyOverlay:
		if a.overlay == nil {
			return nil, domain.InvalidInput("overlay strategy unavailable")
		}
		return a.overlay, nil
	case StrategyHTML:
		if a.html == nil {
			return nil, domain.InvalidInput("html strategy unavailable")
		}
		return a.html, nil
	default:
		return nil, domain.InvalidInput(fmt.Sprintf("unknown strategy %q", name))
	}
}

// finish runs post-application checks. Redactions are verified by
// re-extracting the output and asserting the removed text is gone.
func (a *Applier) finish(ctx context.Context, out []byte, mods []domain.Modification, used StrategyName) (*Result, error) {
	if hasRedaction(mods) && a.extractor != nil {
		if err := a.verifyRedactions(ctx, out, mods); err != nil {
			return nil, err
		}
	}
	return &Result{Data: out, Strategy: used}, nil
}

func (a *Applier) verifyRedactions(ctx context.Context, out []byte, mods []domain.Modification) error {
	res, err := a.extractor.Extract(ctx, out)
	if err != nil {
		// The output not parsing back is worse than a failed verification.
		return domain.NewError(domain.ErrorKindInternal, "redacted output failed verification parse", err)
	}
	text := extract.PlainText(res)
	for _, mod := range mods {
		if mod.Type != domain.ModificationRedact {
			continue
		}
		if strings.Contains(text, mod.OldText) {
			return domain.NewError(domain.ErrorKindInternal,
				fmt.Sprintf("redacted text %q still present in output", mod.OldText), nil)
		}
	}
	return nil
}

// fallbackEligible reports whether a direct-rewrite failure is a structural
// limitation rather than a real mismatch. Mismatches mean the caller's
// coordinates are stale and must not be papered over by another strategy.
func fallbackEligible(err error) bool {
	return errors.Is(err, errUnsupported) || errors.Is(err, errXRefStream)
}

func hasRedaction(mods []domain.Modification) bool {
	for _, mod := range mods {
		if mod.Type == domain.ModificationRedact {
			return true
		}
	}
	return false
}
