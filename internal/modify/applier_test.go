package modify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/conversion-engine/internal/domain"
)

type stubStrategy struct {
	name  StrategyName
	out   []byte
	err   error
	calls int
}

func (s *stubStrategy) Name() StrategyName { return s.name }

func (s *stubStrategy) Apply(ctx context.Context, data []byte, mods []domain.Modification) ([]byte, error) {
	s.calls++
	return s.out, s.err
}

func newStubApplier(direct, overlay, html *stubStrategy) *Applier {
	var o, h Strategy
	if overlay != nil {
		o = overlay
	}
	if html != nil {
		h = html
	}
	return NewApplier(direct, o, h, nil, nil)
}

func replaceMod() domain.Modification {
	return domain.Modification{
		Type:    domain.ModificationReplace,
		Page:    1,
		OldText: "old",
		NewText: "new",
	}
}

func redactMod() domain.Modification {
	return domain.Modification{
		Type:    domain.ModificationRedact,
		Page:    1,
		OldText: "secret",
	}
}

func TestApplier_EmptyBatchIsNoOp(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect}
	a := newStubApplier(direct, nil, nil)

	data := []byte("%PDF-1.4 untouched")
	res, err := a.Apply(context.Background(), data, nil, "")
	require.NoError(t, err)
	assert.Equal(t, data, res.Data)
	assert.Equal(t, StrategyName(""), res.Strategy)
	assert.Zero(t, direct.calls)
}

func TestApplier_DirectPreferred(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect, out: []byte("direct output")}
	overlay := &stubStrategy{name: StrategyOverlay, out: []byte("overlay output")}
	a := newStubApplier(direct, overlay, nil)

	res, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, res.Strategy)
	assert.Equal(t, []byte("direct output"), res.Data)
	assert.Equal(t, 1, direct.calls)
	assert.Zero(t, overlay.calls)
}

func TestApplier_FallsBackOnStructuralFailure(t *testing.T) {
	for _, cause := range []error{errUnsupported, errXRefStream} {
		direct := &stubStrategy{name: StrategyDirect, err: fmt.Errorf("wrapped: %w", cause)}
		overlay := &stubStrategy{name: StrategyOverlay, out: []byte("overlay output")}
		a := newStubApplier(direct, overlay, nil)

		res, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, "")
		require.NoError(t, err)
		assert.Equal(t, StrategyOverlay, res.Strategy)
		assert.Equal(t, 1, overlay.calls)
	}
}

func TestApplier_NoFallbackOnRegionMismatch(t *testing.T) {
	direct := &stubStrategy{
		name: StrategyDirect,
		err:  domain.ModificationRegionMismatch("text not found"),
	}
	overlay := &stubStrategy{name: StrategyOverlay, out: []byte("should not run")}
	a := newStubApplier(direct, overlay, nil)

	_, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindModificationRegionMismatch, domain.KindOf(err))
	assert.Zero(t, overlay.calls)
}

func TestApplier_RedactionNeverFallsBack(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect, err: fmt.Errorf("wrapped: %w", errXRefStream)}
	overlay := &stubStrategy{name: StrategyOverlay, out: []byte("should not run")}
	a := newStubApplier(direct, overlay, nil)

	mods := []domain.Modification{replaceMod(), redactMod()}
	_, err := a.Apply(context.Background(), []byte("in"), mods, "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindModificationRegionMismatch, domain.KindOf(err))
	assert.ErrorIs(t, err, errXRefStream, "the structural cause stays in the chain")
	assert.Zero(t, overlay.calls, "an overlay would leave redacted bytes recoverable")
}

func TestApplier_ForcedStrategySkipsSelection(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect, out: []byte("direct output")}
	overlay := &stubStrategy{name: StrategyOverlay, out: []byte("overlay output")}
	html := &stubStrategy{name: StrategyHTML, out: []byte("html output")}
	a := newStubApplier(direct, overlay, html)

	res, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, StrategyHTML)
	require.NoError(t, err)
	assert.Equal(t, StrategyHTML, res.Strategy)
	assert.Equal(t, 1, html.calls)
	assert.Zero(t, direct.calls)
	assert.Zero(t, overlay.calls)
}

func TestApplier_ForcedStrategyErrorIsFinal(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect, err: fmt.Errorf("wrapped: %w", errUnsupported)}
	overlay := &stubStrategy{name: StrategyOverlay, out: []byte("overlay output")}
	a := newStubApplier(direct, overlay, nil)

	_, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, StrategyDirect)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupported)
	assert.Zero(t, overlay.calls)
}

func TestApplier_UnknownForcedStrategy(t *testing.T) {
	a := newStubApplier(&stubStrategy{name: StrategyDirect}, nil, nil)

	_, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, "carrier-pigeon")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindInvalidInput, domain.KindOf(err))
}

func TestApplier_UnwiredStrategyUnavailable(t *testing.T) {
	a := newStubApplier(&stubStrategy{name: StrategyDirect}, nil, nil)

	_, err := a.Apply(context.Background(), []byte("in"), []domain.Modification{replaceMod()}, StrategyHTML)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindInvalidInput, domain.KindOf(err))
}

func TestApplier_InvalidModificationRejectedBeforeStrategies(t *testing.T) {
	direct := &stubStrategy{name: StrategyDirect}
	a := newStubApplier(direct, nil, nil)

	mods := []domain.Modification{{Type: "rotate", Page: 1}}
	_, err := a.Apply(context.Background(), []byte("in"), mods, "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindInvalidInput, domain.KindOf(err))
	assert.Zero(t, direct.calls)
}
