package loop

import (
	"fmt"
	"strings"

	"github.com/davin/easel/pkg/scene"
)

// SystemPrompt frames the model as a drawing assistant working on a shared
// board through tool calls only.
const SystemPrompt = `You are a drawing assistant manipulating a shared 2D board.

The board is a 100x100 canvas. You change it exclusively through the provided
tools: draw_shape, add_text, remove_element, and clear_board. Never describe
changes in prose without also making the matching tool calls.

Work incrementally: make the tool calls that realize the user's instruction,
then wait for the rendered result to review your own work.`

// buildCritique produces the self-review prompt for one verification pass.
// The first pass leaves room for judgment; later passes assume earlier edits
// did not fix the problem and push toward removal over further tweaking.
func buildCritique(iteration int, hasImage bool, draft []scene.Element) string {
	var b strings.Builder

	if hasImage {
		b.WriteString("Here is the rendered board after your changes.\n\n")
	} else {
		b.WriteString("No rendering is available. Here is the current board state:\n\n")
		b.WriteString(describeScene(draft))
		b.WriteString("\n")
	}

	if iteration <= 1 {
		b.WriteString("Review the result against the instruction. If something is wrong or missing, fix it with tool calls, preferring remove_element over drawing on top of mistakes. If it looks right, reply without any tool calls.")
	} else {
		b.WriteString(fmt.Sprintf("This is review pass %d and the board still does not match the instruction. Do not add more elements to compensate. Remove the wrong elements with remove_element, or start over with clear_board, then redraw only what the instruction asks for. If it now looks right, reply without any tool calls.", iteration))
	}

	return b.String()
}

// describeScene renders the element list as text for critique passes that
// have no image to attach.
func describeScene(elements []scene.Element) string {
	if len(elements) == 0 {
		return "The board is empty."
	}

	var b strings.Builder
	for _, el := range elements {
		switch el.Kind {
		case scene.KindCircle:
			fmt.Fprintf(&b, "- %s circle at (%.0f, %.0f), radius %.0f, id %s\n", el.Color, el.X, el.Y, el.Radius, el.ID)
		case scene.KindText:
			fmt.Fprintf(&b, "- text %q at (%.0f, %.0f), color %s, size %.0f, id %s\n", el.Text, el.X, el.Y, el.Color, el.FontSize, el.ID)
		default:
			fmt.Fprintf(&b, "- %s %s at (%.0f, %.0f), %.0fx%.0f, id %s\n", el.Color, el.Kind, el.X, el.Y, el.Width, el.Height, el.ID)
		}
	}
	return b.String()
}
