package scene

// Apply returns the board content that results from running cmd against
// elements. It is a pure function: the input slice is never mutated, so a
// caller may hold the old value and the new value side by side (draft vs
// committed). Unknown command variants return the input unchanged.
func Apply(elements []Element, cmd Command) []Element {
	switch c := cmd.(type) {
	case Add:
		out := make([]Element, 0, len(elements)+1)
		out = append(out, elements...)
		out = append(out, c.Element)
		return out

	case Update:
		out := Clone(elements)
		for i := range out {
			if out[i].ID == c.ID {
				mergePatch(&out[i], c.Patch)
				break
			}
		}
		return out

	case Remove:
		out := make([]Element, 0, len(elements))
		removed := false
		for _, el := range elements {
			if !removed && el.ID == c.ID {
				removed = true
				continue
			}
			out = append(out, el)
		}
		return out

	case ReplaceAll:
		return Clone(c.Elements)

	case ClearAll:
		return []Element{}

	default:
		return elements
	}
}

func mergePatch(el *Element, p Patch) {
	if p.X != nil {
		el.X = *p.X
	}
	if p.Y != nil {
		el.Y = *p.Y
	}
	if p.Width != nil {
		el.Width = *p.Width
	}
	if p.Height != nil {
		el.Height = *p.Height
	}
	if p.Radius != nil {
		el.Radius = *p.Radius
	}
	if p.Color != nil {
		el.Color = *p.Color
	}
	if p.Text != nil {
		el.Text = *p.Text
	}
	if p.FontSize != nil {
		el.FontSize = *p.FontSize
	}
}
