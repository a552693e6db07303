package modify

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// decodeContent decodes and concatenates a page's content streams. Only
// unfiltered and plain FlateDecode streams are supported; anything else
// (LZW, predictors, crypt filters) bounces to an overlay fallback.
func (f *File) decodeContent(refs []Ref) ([]byte, error) {
	var out bytes.Buffer
	for _, ref := range refs {
		obj, err := f.Object(ref.Num)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*StreamObj)
		if !ok {
			return nil, fmt.Errorf("%w: content object %d is not a stream", errUnsupported, ref.Num)
		}
		decoded, err := decodeStream(stream)
		if err != nil {
			return nil, err
		}
		out.Write(decoded)
		// Adjacent content streams are logically separated by whitespace.
		out.WriteString("\n")
	}
	return out.Bytes(), nil
}

func decodeStream(stream *StreamObj) ([]byte, error) {
	filter := stream.Dict[Name("Filter")]
	switch fv := filter.(type) {
	case nil:
		return stream.Raw, nil
	case Name:
		if fv != Name("FlateDecode") {
			return nil, fmt.Errorf("%w: filter %s", errUnsupported, fv)
		}
	case Array:
		if len(fv) != 1 {
			return nil, fmt.Errorf("%w: filter chain", errUnsupported)
		}
		if name, ok := fv[0].(Name); !ok || name != Name("FlateDecode") {
			return nil, fmt.Errorf("%w: filter chain", errUnsupported)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected filter value", errUnsupported)
	}

	if params, ok := stream.Dict[Name("DecodeParms")]; ok && params != nil {
		return nil, fmt.Errorf("%w: decode parameters", errUnsupported)
	}

	zr, err := zlib.NewReader(bytes.NewReader(stream.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: flate: %v", errUnsupported, err)
	}
	defer zr.Close()

	decoded, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: flate: %v", errUnsupported, err)
	}
	return decoded, nil
}

// encodeStream flate-compresses content and builds its stream dictionary.
func encodeStream(content []byte) (Dict, []byte) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(content)
	zw.Close()

	raw := buf.Bytes()
	return Dict{
		Name("Filter"): Name("FlateDecode"),
		Name("Length"): float64(len(raw)),
	}, raw
}
