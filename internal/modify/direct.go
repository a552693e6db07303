package modify

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// showOp is one text-showing operation located in a decoded content stream.
type showOp struct {
	text     string
	x, y     float64
	start    int // byte span of the string token in the decoded content
	end      int
	fontSize float64
	hex      bool // CID/composite fonts show as hex strings we cannot match
}

// DirectStrategy rewrites the target string tokens inside the page content
// stream and appends the result as an incremental update. Untouched objects
// keep their original bytes. Redacted text is removed from the stream, not
// covered.
type DirectStrategy struct{}

// Name identifies the strategy.
func (s *DirectStrategy) Name() StrategyName { return StrategyDirect }

// Apply performs all modifications and returns the updated document bytes.
// Structural limitations (xref streams, exotic filters, text split across
// fragments) surface as fallback errors; a target that genuinely is not on
// the page is a region mismatch and fatal.
func (s *DirectStrategy) Apply(ctx context.Context, data []byte, mods []domain.Modification) ([]byte, error) {
	file, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	pages, err := file.Pages()
	if err != nil {
		return nil, err
	}

	byPage := make(map[int][]domain.Modification)
	for _, mod := range mods {
		byPage[mod.Page] = append(byPage[mod.Page], mod)
	}

	var updates []UpdatedObject
	for pageNum, pageMods := range byPage {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pageNum < 1 || pageNum > len(pages) {
			return nil, domain.InvalidInput(fmt.Sprintf("page %d out of range (%d pages)", pageNum, len(pages)))
		}
		page := pages[pageNum-1]
		if len(page.ContentRefs) == 0 {
			return nil, fmt.Errorf("%w: page %d has no content stream", errUnsupported, pageNum)
		}

		content, err := file.decodeContent(page.ContentRefs)
		if err != nil {
			return nil, err
		}

		newContent, err := rewriteContent(file, page, content, pageMods)
		if err != nil {
			return nil, err
		}

		dict, raw := encodeStream(newContent)
		contentNum := page.ContentRefs[0].Num
		updates = append(updates, UpdatedObject{Num: contentNum, Dict: dict, Stream: raw})

		// Pages with fragmented content collapse to the single rewritten
		// stream; the page dictionary is re-pointed in the same update.
		if len(page.ContentRefs) > 1 || !contentsIsSingleRef(page.Dict) {
			pageDict := Dict{}
			for k, v := range page.Dict {
				pageDict[k] = v
			}
			pageDict[Name("Contents")] = Ref{Num: contentNum}
			updates = append(updates, UpdatedObject{Num: page.Ref.Num, Dict: pageDict})
		}
	}

	return file.AppendUpdate(updates)
}

func contentsIsSingleRef(page Dict) bool {
	_, ok := page[Name("Contents")].(Ref)
	return ok
}

// rewriteContent applies one page's modifications to its decoded content.
func rewriteContent(file *File, page Page, content []byte, mods []domain.Modification) ([]byte, error) {
	ops, err := scanShowOps(content)
	if err != nil {
		return nil, err
	}

	// Splices ordered back-to-front so earlier spans stay valid.
	type splice struct {
		start, end int
		replacement []byte
	}
	var splices []splice
	var additions []domain.Modification

	for _, mod := range mods {
		if err := mod.Validate(); err != nil {
			return nil, err
		}
		if mod.Type == domain.ModificationAdd {
			additions = append(additions, mod)
			continue
		}

		op, err := matchOp(ops, content, mod)
		if err != nil {
			return nil, err
		}

		var replacement string
		switch mod.Type {
		case domain.ModificationReplace:
			replacement = strings.Replace(op.text, mod.OldText, mod.NewText, 1)
		case domain.ModificationRedact:
			replacement = strings.Replace(op.text, mod.OldText, "", 1)
		}

		var tok bytes.Buffer
		tok.WriteString("(")
		tok.Write(escapeString([]byte(replacement)))
		tok.WriteString(")")
		splices = append(splices, splice{start: op.start, end: op.end, replacement: tok.Bytes()})
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
	for i := 1; i < len(splices); i++ {
		if splices[i].end > splices[i-1].start {
			return nil, fmt.Errorf("%w: overlapping modifications on one text run", errUnsupported)
		}
	}

	out := make([]byte, len(content))
	copy(out, content)
	for _, sp := range splices {
		out = append(out[:sp.start], append(sp.replacement, out[sp.end:]...)...)
	}

	if len(additions) > 0 {
		fontName, err := firstFontName(file, page)
		if err != nil {
			return nil, err
		}
		var b bytes.Buffer
		b.Write(out)
		for _, mod := range additions {
			size := mod.FontSize
			if size <= 0 {
				size = 12
			}
			fmt.Fprintf(&b, "\nq BT /%s %s Tf %s %s %s rg %s %s Td (",
				fontName, formatFloat(size),
				formatFloat(mod.Color.R), formatFloat(mod.Color.G), formatFloat(mod.Color.B),
				formatFloat(mod.Box.X), formatFloat(mod.Box.Y))
			b.Write(escapeString([]byte(mod.NewText)))
			b.WriteString(") Tj ET Q")
		}
		out = b.Bytes()
	}

	return out, nil
}

// matchOp finds the show operation targeted by a replace or redact. A target
// found nowhere on the page is a region mismatch (the caller's extraction is
// stale); a target only present across fragment boundaries is a structural
// limitation and falls back.
func matchOp(ops []showOp, content []byte, mod domain.Modification) (*showOp, error) {
	var candidates []showOp
	for _, op := range ops {
		if strings.Contains(op.text, mod.OldText) {
			candidates = append(candidates, op)
		}
	}

	switch len(candidates) {
	case 0:
		if strings.Contains(concatOpText(ops), mod.OldText) {
			return nil, fmt.Errorf("%w: target text spans content fragments", errUnsupported)
		}
		for _, op := range ops {
			if op.hex {
				// Composite-font text is opaque to byte matching.
				return nil, fmt.Errorf("%w: page text uses composite font encoding", errUnsupported)
			}
		}
		return nil, domain.ModificationRegionMismatch(
			fmt.Sprintf("text %q not found on page %d", mod.OldText, mod.Page))
	case 1:
		return &candidates[0], nil
	}

	// Several occurrences: pick the one nearest the requested box.
	best := -1
	bestDist := math.MaxFloat64
	for i, op := range candidates {
		d := math.Hypot(op.x-mod.Box.X, op.y-mod.Box.Y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if bestDist > 50 {
		return nil, domain.ModificationRegionMismatch(
			fmt.Sprintf("no occurrence of %q near (%.1f, %.1f) on page %d",
				mod.OldText, mod.Box.X, mod.Box.Y, mod.Page))
	}
	return &candidates[best], nil
}

func concatOpText(ops []showOp) string {
	var b strings.Builder
	for _, op := range ops {
		b.WriteString(op.text)
	}
	return b.String()
}

// scanShowOps interprets the content stream far enough to locate every
// text-showing operator with its token span and text position. Only the
// translation components of Td/TD/Tm are tracked; that is sufficient for
// matching against extractor coordinates on unrotated pages.
func scanShowOps(content []byte) ([]showOp, error) {
	lex := NewLexer(content, 0)

	var ops []showOp
	var operands []Token
	var lineX, lineY float64
	var leading float64
	var fontSize float64

	appendShow := func(tok Token) {
		ops = append(ops, showOp{
			text:     tok.Value,
			x:        lineX,
			y:        lineY,
			start:    tok.Start,
			end:      tok.End,
			fontSize: fontSize,
			hex:      tok.Type == TokenHexString,
		})
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			// Inline image data or binary junk ends the scan; the ops found
			// so far still allow matching.
			return ops, nil
		}
		if tok.Type == TokenEOF {
			return ops, nil
		}
		if tok.Type != TokenKeyword {
			operands = append(operands, tok)
			continue
		}

		switch tok.Value {
		case "BT":
			lineX, lineY = 0, 0
		case "Tf":
			if len(operands) >= 1 {
				fontSize = operands[len(operands)-1].Num
			}
		case "TL":
			if len(operands) >= 1 {
				leading = operands[len(operands)-1].Num
			}
		case "Td":
			if len(operands) >= 2 {
				lineX += operands[len(operands)-2].Num
				lineY += operands[len(operands)-1].Num
			}
		case "TD":
			if len(operands) >= 2 {
				lineX += operands[len(operands)-2].Num
				lineY += operands[len(operands)-1].Num
				leading = -operands[len(operands)-1].Num
			}
		case "Tm":
			if len(operands) >= 6 {
				lineX = operands[len(operands)-2].Num
				lineY = operands[len(operands)-1].Num
			}
		case "T*":
			lineY -= leading
		case "Tj":
			if len(operands) >= 1 && isStringToken(operands[len(operands)-1]) {
				appendShow(operands[len(operands)-1])
			}
		case "'":
			lineY -= leading
			if len(operands) >= 1 && isStringToken(operands[len(operands)-1]) {
				appendShow(operands[len(operands)-1])
			}
		case "\"":
			lineY -= leading
			if len(operands) >= 1 && isStringToken(operands[len(operands)-1]) {
				appendShow(operands[len(operands)-1])
			}
		case "TJ":
			// Each string element of the array is its own splice target.
			for _, op := range operands {
				if isStringToken(op) {
					appendShow(op)
				}
			}
		case "BI":
			// Inline image: raw binary follows, the lexer cannot cross it.
			return ops, nil
		}
		operands = operands[:0]
	}
}

func isStringToken(tok Token) bool {
	return tok.Type == TokenString || tok.Type == TokenHexString
}

// firstFontName picks a font from the page resources for added text.
func firstFontName(file *File, page Page) (Name, error) {
	if page.Resources == nil {
		return "", fmt.Errorf("%w: page has no resources", errUnsupported)
	}
	fonts, err := file.Resolve(page.Resources[Name("Font")])
	if err != nil || fonts == nil {
		return "", fmt.Errorf("%w: page has no font resources", errUnsupported)
	}
	dict, ok := fonts.(Dict)
	if !ok || len(dict) == 0 {
		return "", fmt.Errorf("%w: page has no font resources", errUnsupported)
	}
	names := make([]string, 0, len(dict))
	for k := range dict {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return Name(names[0]), nil
}
