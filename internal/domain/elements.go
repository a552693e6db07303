package domain

// All coordinates in this package are PDF user-space points: origin at the
// bottom-left of the page, y increasing upward. The extractor reports
// elements in this space and the modification applier consumes the same
// space, so coordinates round-trip without transformation. Strategies that
// pass through top-left-origin representations (HTML) convert at their edges.

// ElementType distinguishes the kinds of positioned page content.
type ElementType string

const (
	ElementTypeText  ElementType = "text"
	ElementTypeImage ElementType = "image"
	ElementTypePath  ElementType = "path"
)

// Color is an RGB color with components in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Rect is an axis-aligned bounding box in PDF user space. X,Y name the
// lower-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether r fully covers other, with a small tolerance to
// absorb rounding in extraction output.
func (r Rect) Contains(other Rect, tolerance float64) bool {
	return other.X >= r.X-tolerance &&
		other.Y >= r.Y-tolerance &&
		other.X+other.Width <= r.X+r.Width+tolerance &&
		other.Y+other.Height <= r.Y+r.Height+tolerance
}

// Overlaps reports whether r and other intersect.
func (r Rect) Overlaps(other Rect) bool {
	return r.X < other.X+other.Width && other.X < r.X+r.Width &&
		r.Y < other.Y+other.Height && other.Y < r.Y+r.Height
}

// TextElement is one extracted content run on a page. Page numbers are
// 1-based. Transient: the contract between extractor, applier, and UI, never
// persisted.
type TextElement struct {
	Page     int         `json:"page"`
	Type     ElementType `json:"type"`
	Box      Rect        `json:"box"`
	Text     string      `json:"text,omitempty"`
	Font     string      `json:"font,omitempty"`
	FontSize float64     `json:"fontSize,omitempty"`
	Color    Color       `json:"color"`
}

// ModificationType enumerates the supported edits.
type ModificationType string

const (
	ModificationAdd     ModificationType = "add"
	ModificationReplace ModificationType = "replace"
	ModificationRedact  ModificationType = "redact"
)

// Modification is one requested edit targeting a page region. For replace and
// redact, OldText must match the extractor-reported content of Box; replace
// and add carry the NewText to draw.
type Modification struct {
	Type     ModificationType `json:"type"`
	Page     int              `json:"page"`
	Box      Rect             `json:"box"`
	OldText  string           `json:"oldText,omitempty"`
	NewText  string           `json:"newText,omitempty"`
	FontSize float64          `json:"fontSize,omitempty"`
	Color    Color            `json:"color"`
}

// Validate checks structural requirements of a modification.
func (m Modification) Validate() error {
	if m.Page < 1 {
		return InvalidInput("modification page must be 1-based")
	}
	switch m.Type {
	case ModificationAdd:
		if m.NewText == "" {
			return InvalidInput("add modification requires newText")
		}
	case ModificationReplace:
		if m.OldText == "" || m.NewText == "" {
			return InvalidInput("replace modification requires oldText and newText")
		}
	case ModificationRedact:
		if m.OldText == "" {
			return InvalidInput("redact modification requires oldText")
		}
	default:
		return InvalidInput("unknown modification type " + string(m.Type))
	}
	return nil
}

// ExtractionResult carries positioned elements plus the count of pages the
// extractor had to skip. Partial extraction returns elements for the pages
// that succeeded rather than dropping all output.
type ExtractionResult struct {
	Elements     []TextElement `json:"elements"`
	PageCount    int           `json:"pageCount"`
	SkippedPages int           `json:"skippedPages"`
}
