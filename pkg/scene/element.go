package scene

// Kind identifies the drawable primitive an Element represents.
type Kind string

const (
	KindRect     Kind = "rect"
	KindCircle   Kind = "circle"
	KindTriangle Kind = "triangle"
	KindText     Kind = "text"
)

// Element is one drawable primitive on the board. Coordinates and sizes live
// in a normalized 0-100 space. Only the size fields matching Kind are
// meaningful: Width/Height for rect and triangle, Radius for circle, and
// Text/FontSize for text. Consumers ignore the rest.
type Element struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Radius   float64 `json:"radius,omitempty"`
	Color    string  `json:"color"`
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
}

// Patch carries the fields of an Update command. Nil fields are left
// untouched by Apply; the element id itself is immutable.
type Patch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
	Color    *string  `json:"color,omitempty"`
	Text     *string  `json:"text,omitempty"`
	FontSize *float64 `json:"fontSize,omitempty"`
}

// Clone returns an independent copy of elements. Writers must never share a
// slice with readers; every mutation goes through Apply on a private copy.
func Clone(elements []Element) []Element {
	out := make([]Element, len(elements))
	copy(out, elements)
	return out
}
