package modify

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Errors that make the direct strategy hand off to a fallback rather than
// fail the request.
var (
	errXRefStream  = errors.New("xref streams not supported by direct rewrite")
	errUnsupported = errors.New("unsupported pdf structure for direct rewrite")
)

// Name is a PDF name object.
type Name string

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

// Dict is a PDF dictionary.
type Dict map[Name]interface{}

// Array is a PDF array.
type Array []interface{}

// StreamObj is a stream object: its dictionary plus the raw (still encoded)
// stream bytes.
type StreamObj struct {
	Dict Dict
	Raw  []byte
}

// File is a parsed PDF held for direct rewriting. Only classic cross-
// reference tables are supported; files using cross-reference streams
// surface errXRefStream so the applier falls back to overlay.
type File struct {
	data      []byte
	xref      map[int]int64
	trailer   Dict
	startXRef int64
}

var startxrefRe = regexp.MustCompile(`startxref\s+(\d+)`)

// ParseFile parses the xref chain and trailer of a PDF.
func ParseFile(data []byte) (*File, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing pdf header", errUnsupported)
	}

	f := &File{data: data, xref: make(map[int]int64)}

	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	matches := startxrefRe.FindAllSubmatch(tail, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: startxref not found", errUnsupported)
	}
	offset, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad startxref", errUnsupported)
	}
	f.startXRef = offset

	// Follow the /Prev chain, newest section first. Entries from newer
	// sections win.
	seen := make(map[int64]bool)
	for offset > 0 && !seen[offset] {
		seen[offset] = true
		trailer, prev, err := f.parseXRefSection(offset)
		if err != nil {
			return nil, err
		}
		if f.trailer == nil {
			f.trailer = trailer
		}
		offset = prev
	}
	if f.trailer == nil {
		return nil, fmt.Errorf("%w: no trailer", errUnsupported)
	}
	return f, nil
}

// parseXRefSection parses one classic xref table at offset and its trailer.
// Returns the trailer dict and the /Prev offset (0 when absent).
func (f *File) parseXRefSection(offset int64) (Dict, int64, error) {
	if offset < 0 || offset >= int64(len(f.data)) {
		return nil, 0, fmt.Errorf("%w: xref offset out of range", errUnsupported)
	}

	lex := NewLexer(f.data, int(offset))
	tok, err := lex.Next()
	if err != nil {
		return nil, 0, err
	}
	if tok.Type == TokenNumber {
		// An object header where a table was expected means the file uses
		// cross-reference streams.
		return nil, 0, errXRefStream
	}
	if tok.Type != TokenKeyword || tok.Value != "xref" {
		return nil, 0, fmt.Errorf("%w: expected xref keyword", errUnsupported)
	}

	for {
		tok, err = lex.Next()
		if err != nil {
			return nil, 0, err
		}
		if tok.Type == TokenKeyword && tok.Value == "trailer" {
			break
		}
		if tok.Type != TokenNumber {
			return nil, 0, fmt.Errorf("%w: malformed xref subsection", errUnsupported)
		}
		first := int(tok.Num)
		tok, err = lex.Next()
		if err != nil {
			return nil, 0, err
		}
		if tok.Type != TokenNumber {
			return nil, 0, fmt.Errorf("%w: malformed xref subsection", errUnsupported)
		}
		count := int(tok.Num)

		for i := 0; i < count; i++ {
			offTok, err := lex.Next()
			if err != nil {
				return nil, 0, err
			}
			genTok, err := lex.Next()
			if err != nil {
				return nil, 0, err
			}
			kindTok, err := lex.Next()
			if err != nil {
				return nil, 0, err
			}
			if offTok.Type != TokenNumber || genTok.Type != TokenNumber || kindTok.Type != TokenKeyword {
				return nil, 0, fmt.Errorf("%w: malformed xref entry", errUnsupported)
			}
			num := first + i
			if kindTok.Value == "n" {
				if _, exists := f.xref[num]; !exists {
					f.xref[num] = int64(offTok.Num)
				}
			}
		}
	}

	trailerVal, err := parseValue(lex)
	if err != nil {
		return nil, 0, err
	}
	trailer, ok := trailerVal.(Dict)
	if !ok {
		return nil, 0, fmt.Errorf("%w: trailer is not a dictionary", errUnsupported)
	}

	var prev int64
	if p, ok := trailer[Name("Prev")].(float64); ok {
		prev = int64(p)
	}
	return trailer, prev, nil
}

// parseValue parses one PDF value starting at the lexer position. Indirect
// references ("N G R") are recognized by lookahead.
func parseValue(lex *Lexer) (interface{}, error) {
	tok, err := lex.Next()
	if err != nil {
		return nil, err
	}
	return parseValueFrom(lex, tok)
}

func parseValueFrom(lex *Lexer, tok Token) (interface{}, error) {
	switch tok.Type {
	case TokenNumber:
		// Lookahead for "G R".
		save := lex.Pos()
		genTok, err := lex.Next()
		if err == nil && genTok.Type == TokenNumber {
			rTok, err := lex.Next()
			if err == nil && rTok.Type == TokenKeyword && rTok.Value == "R" {
				return Ref{Num: int(tok.Num), Gen: int(genTok.Num)}, nil
			}
		}
		lex.Seek(save)
		return tok.Num, nil
	case TokenName:
		return Name(tok.Value), nil
	case TokenString, TokenHexString:
		return []byte(tok.Value), nil
	case TokenDictStart:
		dict := Dict{}
		for {
			keyTok, err := lex.Next()
			if err != nil {
				return nil, err
			}
			if keyTok.Type == TokenDictEnd {
				return dict, nil
			}
			if keyTok.Type != TokenName {
				return nil, fmt.Errorf("%w: dict key is not a name", errUnsupported)
			}
			val, err := parseValue(lex)
			if err != nil {
				return nil, err
			}
			dict[Name(keyTok.Value)] = val
		}
	case TokenArrayStart:
		var arr Array
		for {
			elTok, err := lex.Next()
			if err != nil {
				return nil, err
			}
			if elTok.Type == TokenArrayEnd {
				return arr, nil
			}
			val, err := parseValueFrom(lex, elTok)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
	case TokenKeyword:
		switch tok.Value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unexpected keyword %q", errUnsupported, tok.Value)
	}
	return nil, fmt.Errorf("%w: unexpected token", errUnsupported)
}

// Object loads and parses the indirect object numbered num. Stream objects
// come back as *StreamObj with raw bytes still encoded.
func (f *File) Object(num int) (interface{}, error) {
	offset, ok := f.xref[num]
	if !ok {
		return nil, fmt.Errorf("%w: object %d not in xref", errUnsupported, num)
	}
	if offset < 0 || offset >= int64(len(f.data)) {
		return nil, fmt.Errorf("%w: object %d offset out of range", errUnsupported, num)
	}

	lex := NewLexer(f.data, int(offset))
	numTok, err := lex.Next()
	if err != nil {
		return nil, err
	}
	genTok, err := lex.Next()
	if err != nil {
		return nil, err
	}
	objTok, err := lex.Next()
	if err != nil {
		return nil, err
	}
	if numTok.Type != TokenNumber || genTok.Type != TokenNumber ||
		objTok.Type != TokenKeyword || objTok.Value != "obj" || int(numTok.Num) != num {
		return nil, fmt.Errorf("%w: malformed object header for %d", errUnsupported, num)
	}

	val, err := parseValue(lex)
	if err != nil {
		return nil, err
	}

	save := lex.Pos()
	next, err := lex.Next()
	if err == nil && next.Type == TokenKeyword && next.Value == "stream" {
		dict, ok := val.(Dict)
		if !ok {
			return nil, fmt.Errorf("%w: stream without dictionary", errUnsupported)
		}
		length, err := f.resolveInt(dict[Name("Length")])
		if err != nil {
			return nil, err
		}
		// Stream data starts after the EOL following the stream keyword.
		pos := next.End
		if pos < len(f.data) && f.data[pos] == '\r' {
			pos++
		}
		if pos < len(f.data) && f.data[pos] == '\n' {
			pos++
		}
		if pos+length > len(f.data) {
			return nil, fmt.Errorf("%w: stream length out of range", errUnsupported)
		}
		return &StreamObj{Dict: dict, Raw: f.data[pos : pos+length]}, nil
	}
	lex.Seek(save)
	return val, nil
}

// Resolve follows an indirect reference to its value; non-references pass
// through.
func (f *File) Resolve(v interface{}) (interface{}, error) {
	for i := 0; i < 32; i++ {
		ref, ok := v.(Ref)
		if !ok {
			return v, nil
		}
		obj, err := f.Object(ref.Num)
		if err != nil {
			return nil, err
		}
		v = obj
	}
	return nil, fmt.Errorf("%w: reference cycle", errUnsupported)
}

func (f *File) resolveInt(v interface{}) (int, error) {
	rv, err := f.Resolve(v)
	if err != nil {
		return 0, err
	}
	n, ok := rv.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer", errUnsupported)
	}
	return int(n), nil
}

// Page describes one page for rewriting.
type Page struct {
	Number      int // 1-based
	Ref         Ref
	Dict        Dict
	ContentRefs []Ref
	MediaBox    [4]float64
	Resources   Dict
}

// Pages walks the page tree in document order.
func (f *File) Pages() ([]Page, error) {
	if enc, ok := f.trailer[Name("Encrypt")]; ok && enc != nil {
		return nil, fmt.Errorf("%w: encrypted document", errUnsupported)
	}

	rootRef, ok := f.trailer[Name("Root")].(Ref)
	if !ok {
		return nil, fmt.Errorf("%w: trailer has no Root", errUnsupported)
	}
	catalog, err := f.resolveDict(rootRef)
	if err != nil {
		return nil, err
	}
	pagesRef, ok := catalog[Name("Pages")].(Ref)
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no Pages", errUnsupported)
	}

	var pages []Page
	var walk func(ref Ref, inheritedBox *[4]float64, inheritedRes Dict) error
	walk = func(ref Ref, inheritedBox *[4]float64, inheritedRes Dict) error {
		if len(pages) > 10000 {
			return fmt.Errorf("%w: page tree too deep", errUnsupported)
		}
		node, err := f.resolveDict(ref)
		if err != nil {
			return err
		}

		if box, err := f.mediaBox(node); err == nil {
			inheritedBox = box
		}
		if res, ok := node[Name("Resources")]; ok {
			if rd, err := f.resolveDict(res); err == nil {
				inheritedRes = rd
			}
		}

		switch node[Name("Type")] {
		case Name("Pages"):
			kids, err := f.Resolve(node[Name("Kids")])
			if err != nil {
				return err
			}
			kidArr, ok := kids.(Array)
			if !ok {
				return fmt.Errorf("%w: Kids is not an array", errUnsupported)
			}
			for _, kid := range kidArr {
				kidRef, ok := kid.(Ref)
				if !ok {
					return fmt.Errorf("%w: kid is not a reference", errUnsupported)
				}
				if err := walk(kidRef, inheritedBox, inheritedRes); err != nil {
					return err
				}
			}
			return nil
		case Name("Page"):
			page := Page{
				Number:    len(pages) + 1,
				Ref:       ref,
				Dict:      node,
				Resources: inheritedRes,
			}
			if inheritedBox != nil {
				page.MediaBox = *inheritedBox
			} else {
				page.MediaBox = [4]float64{0, 0, 612, 792}
			}
			refs, err := f.contentRefs(node)
			if err != nil {
				return err
			}
			page.ContentRefs = refs
			pages = append(pages, page)
			return nil
		}
		return fmt.Errorf("%w: unexpected page tree node type", errUnsupported)
	}

	if err := walk(pagesRef, nil, nil); err != nil {
		return nil, err
	}
	return pages, nil
}

func (f *File) resolveDict(v interface{}) (Dict, error) {
	rv, err := f.Resolve(v)
	if err != nil {
		return nil, err
	}
	d, ok := rv.(Dict)
	if !ok {
		return nil, fmt.Errorf("%w: expected dictionary", errUnsupported)
	}
	return d, nil
}

func (f *File) mediaBox(node Dict) (*[4]float64, error) {
	raw, ok := node[Name("MediaBox")]
	if !ok {
		return nil, errors.New("no MediaBox")
	}
	rv, err := f.Resolve(raw)
	if err != nil {
		return nil, err
	}
	arr, ok := rv.(Array)
	if !ok || len(arr) != 4 {
		return nil, errors.New("bad MediaBox")
	}
	var box [4]float64
	for i, v := range arr {
		n, ok := v.(float64)
		if !ok {
			return nil, errors.New("bad MediaBox entry")
		}
		box[i] = n
	}
	return &box, nil
}

func (f *File) contentRefs(page Dict) ([]Ref, error) {
	raw, ok := page[Name("Contents")]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case Ref:
		// Contents may reference an array of streams.
		resolved, err := f.Resolve(v)
		if err != nil {
			return nil, err
		}
		if arr, ok := resolved.(Array); ok {
			return refsFromArray(arr)
		}
		return []Ref{v}, nil
	case Array:
		return refsFromArray(v)
	}
	return nil, fmt.Errorf("%w: unexpected Contents value", errUnsupported)
}

func refsFromArray(arr Array) ([]Ref, error) {
	refs := make([]Ref, 0, len(arr))
	for _, v := range arr {
		ref, ok := v.(Ref)
		if !ok {
			return nil, fmt.Errorf("%w: Contents array holds non-reference", errUnsupported)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// MaxObjectNum returns the highest object number in the xref.
func (f *File) MaxObjectNum() int {
	max := 0
	for num := range f.xref {
		if num > max {
			max = num
		}
	}
	return max
}

// Trailer returns the (newest) trailer dictionary.
func (f *File) Trailer() Dict { return f.trailer }

// writeValue serializes a PDF value.
func writeValue(b *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		if val == float64(int64(val)) {
			fmt.Fprintf(b, "%d", int64(val))
		} else {
			fmt.Fprintf(b, "%g", val)
		}
	case Name:
		b.WriteString("/")
		b.WriteString(string(val))
	case []byte:
		b.WriteString("(")
		b.Write(escapeString(val))
		b.WriteString(")")
	case Ref:
		fmt.Fprintf(b, "%d %d R", val.Num, val.Gen)
	case Array:
		b.WriteString("[")
		for i, el := range val {
			if i > 0 {
				b.WriteString(" ")
			}
			writeValue(b, el)
		}
		b.WriteString("]")
	case Dict:
		b.WriteString("<<")
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" /")
			b.WriteString(k)
			b.WriteString(" ")
			writeValue(b, val[Name(k)])
		}
		b.WriteString(" >>")
	default:
		b.WriteString("null")
	}
}

func escapeString(s []byte) []byte {
	var out []byte
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}

// UpdatedObject is one object to replace in an incremental update.
type UpdatedObject struct {
	Num    int
	Dict   Dict
	Stream []byte // nil for plain dict objects
}

// AppendUpdate appends an incremental update section replacing the given
// objects. The original bytes stay untouched; readers resolve the new
// definitions through the appended xref section.
func (f *File) AppendUpdate(updates []UpdatedObject) ([]byte, error) {
	if len(updates) == 0 {
		return f.data, nil
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].Num < updates[j].Num })

	out := bytes.NewBuffer(nil)
	out.Write(f.data)
	if f.data[len(f.data)-1] != '\n' {
		out.WriteString("\n")
	}

	offsets := make(map[int]int64, len(updates))
	maxNum := f.MaxObjectNum()
	for _, upd := range updates {
		offsets[upd.Num] = int64(out.Len())
		fmt.Fprintf(out, "%d 0 obj\n", upd.Num)
		writeValue(out, upd.Dict)
		if upd.Stream != nil {
			out.WriteString("\nstream\n")
			out.Write(upd.Stream)
			out.WriteString("\nendstream")
		}
		out.WriteString("\nendobj\n")
		if upd.Num > maxNum {
			maxNum = upd.Num
		}
	}

	xrefPos := int64(out.Len())
	out.WriteString("xref\n")
	for _, group := range groupConsecutive(updates) {
		fmt.Fprintf(out, "%d %d\n", group[0], len(group))
		for _, num := range group {
			fmt.Fprintf(out, "%010d %05d n \n", offsets[num], 0)
		}
	}

	trailer := Dict{}
	for k, v := range f.trailer {
		trailer[k] = v
	}
	trailer[Name("Prev")] = float64(f.startXRef)
	trailer[Name("Size")] = float64(maxNum + 1)
	delete(trailer, Name("XRefStm"))

	out.WriteString("trailer\n")
	writeValue(out, trailer)
	fmt.Fprintf(out, "\nstartxref\n%d\n%%%%EOF\n", xrefPos)

	return out.Bytes(), nil
}

func groupConsecutive(updates []UpdatedObject) [][]int {
	var groups [][]int
	for _, upd := range updates {
		if len(groups) > 0 {
			last := groups[len(groups)-1]
			if last[len(last)-1]+1 == upd.Num {
				groups[len(groups)-1] = append(last, upd.Num)
				continue
			}
		}
		groups = append(groups, []int{upd.Num})
	}
	return groups
}

// formatFloat renders a coordinate with short precision for content streams.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
