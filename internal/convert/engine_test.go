package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(config.ConvertConfig{HopTimeout: time.Minute, RasterDPI: 150}, nil)
}

func TestEngine_Convert_UnknownFormatPair(t *testing.T) {
	e := testEngine()

	_, err := e.Convert(context.Background(), "in.exe", t.TempDir(), Format("exe"), FormatPDF, Options{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindUnsupportedFormatPair, domain.KindOf(err))

	_, err = e.Convert(context.Background(), "in.pdf", t.TempDir(), FormatPDF, Format("wad"), Options{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindUnsupportedFormatPair, domain.KindOf(err))
}

func TestEngine_Convert_SameFormatCopies(t *testing.T) {
	e := testEngine()
	dir := t.TempDir()

	src := filepath.Join(dir, "input.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 payload"), 0o644))

	outDir := t.TempDir()
	out, err := e.Convert(context.Background(), src, outDir, FormatPDF, FormatPDF, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "input.pdf"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 payload"), data)
}

func TestEngine_Convert_NormalizesAliases(t *testing.T) {
	e := testEngine()
	dir := t.TempDir()

	src := filepath.Join(dir, "photo.jpeg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg bytes"), 0o644))

	// "jpeg" and "JPG" are the same format, so this is a plain copy.
	out, err := e.Convert(context.Background(), src, t.TempDir(), Format("jpeg"), Format("JPG"), Options{})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestEngine_BackendLookup(t *testing.T) {
	e := testEngine()

	tests := []struct {
		from, to Format
		want     Backend
	}{
		{FormatDOCX, FormatPDF, e.office},
		{FormatPDF, FormatDOCX, e.office},
		{FormatPDF, FormatPNG, e.raster},
		{FormatJPG, FormatPDF, e.raster},
		{FormatPDF, FormatTXT, e.text},
		{FormatODT, FormatDOCX, e.office},
	}
	for _, tc := range tests {
		assert.Same(t, tc.want, e.lookup(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.Nil(t, e.lookup(FormatPDF, FormatPDF), "identity pairs never route to a backend")
	assert.Nil(t, e.lookup(FormatJPG, FormatPNG), "image-to-image needs the two-hop path")
}

func TestOfficeBackend_Supports(t *testing.T) {
	b := NewOfficeBackend("", time.Minute, nil)

	assert.True(t, b.Supports(FormatDOCX, FormatPDF))
	assert.True(t, b.Supports(FormatPDF, FormatDOCX))
	assert.True(t, b.Supports(FormatCSV, FormatPDF), "office inputs reach pdf even without an explicit filter")
	assert.False(t, b.Supports(FormatPNG, FormatPDF))
	assert.False(t, b.Supports(FormatPDF, FormatPNG))
}

func TestTextBackend_Supports(t *testing.T) {
	b := NewTextBackend()
	assert.True(t, b.Supports(FormatPDF, FormatTXT))
	assert.False(t, b.Supports(FormatTXT, FormatPDF))
	assert.False(t, b.Supports(FormatDOCX, FormatTXT))
}

func TestRasterBackend_Supports(t *testing.T) {
	b := NewRasterBackend(0)
	assert.True(t, b.Supports(FormatPDF, FormatPNG))
	assert.True(t, b.Supports(FormatTIFF, FormatPDF))
	assert.False(t, b.Supports(FormatPNG, FormatJPG))
	assert.False(t, b.Supports(FormatDOCX, FormatPDF))
}
