package modify

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a one-page classic-xref document around the given
// content stream, computing real byte offsets for the xref table.
func buildPDF(t *testing.T, content []byte, compress bool) []byte {
	t.Helper()

	streamDict := fmt.Sprintf("<< /Length %d >>", len(content))
	if compress {
		var cbuf bytes.Buffer
		zw := zlib.NewWriter(&cbuf)
		_, err := zw.Write(content)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		content = cbuf.Bytes()
		streamDict = fmt.Sprintf("<< /Filter /FlateDecode /Length %d >>", len(content))
	}

	var buf bytes.Buffer
	offsets := make(map[int]int)
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	obj(4, streamDict+"\nstream\n"+string(content)+"\nendstream")
	obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for num := 1; num <= 5; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

// pageContent reparses document bytes and returns the decoded content of the
// first page, as a reader following the xref chain would see it.
func pageContent(t *testing.T, data []byte) string {
	t.Helper()
	file, err := ParseFile(data)
	require.NoError(t, err)
	pages, err := file.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	content, err := file.decodeContent(pages[0].ContentRefs)
	require.NoError(t, err)
	return string(content)
}

func TestParseFile_RejectsNonPDF(t *testing.T) {
	_, err := ParseFile([]byte("this is not a pdf"))
	assert.ErrorIs(t, err, errUnsupported)
}

func TestParseFile_DetectsCrossReferenceStreams(t *testing.T) {
	// startxref pointing at an object header instead of an xref table is how
	// files with cross-reference streams present themselves.
	data := []byte("%PDF-1.5\n1 0 obj\n<< /Type /XRef >>\nendobj\nstartxref\n9\n%%EOF\n")
	_, err := ParseFile(data)
	assert.ErrorIs(t, err, errXRefStream)
}

func TestFile_PagesAndObjects(t *testing.T) {
	data := buildPDF(t, []byte("BT /F1 12 Tf 72 700 Td (Hello World) Tj ET"), false)

	file, err := ParseFile(data)
	require.NoError(t, err)
	assert.Equal(t, 5, file.MaxObjectNum())

	pages, err := file.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)

	page := pages[0]
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, [4]float64{0, 0, 612, 792}, page.MediaBox)
	require.Len(t, page.ContentRefs, 1)
	assert.Equal(t, 4, page.ContentRefs[0].Num)
	require.NotNil(t, page.Resources)

	obj, err := file.Object(4)
	require.NoError(t, err)
	stream, ok := obj.(*StreamObj)
	require.True(t, ok)
	assert.Contains(t, string(stream.Raw), "(Hello World) Tj")
}

func TestFile_Pages_RejectsEncrypted(t *testing.T) {
	data := buildPDF(t, []byte("BT ET"), false)
	file, err := ParseFile(data)
	require.NoError(t, err)
	file.trailer[Name("Encrypt")] = Ref{Num: 9}

	_, err = file.Pages()
	assert.ErrorIs(t, err, errUnsupported)
}

func TestFile_AppendUpdate_NewestDefinitionWins(t *testing.T) {
	original := buildPDF(t, []byte("BT /F1 12 Tf (old) Tj ET"), false)
	file, err := ParseFile(original)
	require.NoError(t, err)

	newContent := []byte("BT /F1 12 Tf (new) Tj ET")
	dict, raw := encodeStream(newContent)
	out, err := file.AppendUpdate([]UpdatedObject{{Num: 4, Dict: dict, Stream: raw}})
	require.NoError(t, err)

	// Incremental update: every original byte survives as a prefix.
	assert.True(t, bytes.HasPrefix(out, original))

	content := pageContent(t, out)
	assert.Contains(t, content, "(new) Tj")
	assert.NotContains(t, content, "(old)")

	reparsed, err := ParseFile(out)
	require.NoError(t, err)
	prev, ok := reparsed.Trailer()[Name("Prev")].(float64)
	require.True(t, ok)
	assert.Greater(t, prev, float64(0))
}

func TestFile_AppendUpdate_EmptyIsIdentity(t *testing.T) {
	original := buildPDF(t, []byte("BT ET"), false)
	file, err := ParseFile(original)
	require.NoError(t, err)

	out, err := file.AppendUpdate(nil)
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestDecodeStream_UnsupportedFilterBounces(t *testing.T) {
	stream := &StreamObj{
		Dict: Dict{Name("Filter"): Name("LZWDecode")},
		Raw:  []byte{0x80},
	}
	_, err := decodeStream(stream)
	assert.ErrorIs(t, err, errUnsupported)

	stream = &StreamObj{
		Dict: Dict{
			Name("Filter"):      Name("FlateDecode"),
			Name("DecodeParms"): Dict{Name("Predictor"): float64(12)},
		},
		Raw: []byte{0x78, 0x9c},
	}
	_, err = decodeStream(stream)
	assert.ErrorIs(t, err, errUnsupported)
}

func TestEncodeStream_RoundTrip(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 700 Td (round trip) Tj ET")
	dict, raw := encodeStream(content)

	assert.Equal(t, Name("FlateDecode"), dict[Name("Filter")])
	assert.Equal(t, float64(len(raw)), dict[Name("Length")])

	decoded, err := decodeStream(&StreamObj{Dict: dict, Raw: raw})
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestGroupConsecutive(t *testing.T) {
	groups := groupConsecutive([]UpdatedObject{
		{Num: 3}, {Num: 4}, {Num: 7}, {Num: 10}, {Num: 11}, {Num: 12},
	})
	assert.Equal(t, [][]int{{3, 4}, {7}, {10, 11, 12}}, groups)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "72", formatFloat(72))
	assert.Equal(t, "72.5", formatFloat(72.5))
	assert.Equal(t, "0.25", formatFloat(0.251))
	assert.Equal(t, "-3.1", formatFloat(-3.1))
	assert.Equal(t, "0", formatFloat(0))
}
