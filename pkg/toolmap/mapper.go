package toolmap

import (
	"math"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/davin/easel/pkg/scene"
)

const (
	// Elements farther than this from a remove_element target never qualify.
	removeProximity = 20.0

	defaultTextColor    = "#000000"
	defaultTextFontSize = 16.0
)

// Map translates a tool call into a board command, resolving spatial
// references against elements. The second return is false when the call does
// not produce a command: unknown tool, arguments failing the tool schema, or
// no element close enough to a removal target. Callers acknowledge the call
// to the model either way.
func Map(name string, args map[string]interface{}, elements []scene.Element) (scene.Command, bool) {
	if !validArgs(name, args) {
		return nil, false
	}

	switch name {
	case "draw_shape":
		return mapDrawShape(args)
	case "add_text":
		return mapAddText(args)
	case "remove_element":
		return mapRemoveElement(args, elements)
	case "clear_board":
		return scene.ClearAll{}, true
	default:
		return nil, false
	}
}

func mapDrawShape(args map[string]interface{}) (scene.Command, bool) {
	kind, ok := shapeKind(args["type"])
	if !ok {
		return nil, false
	}

	el := scene.Element{
		ID:    newElementID(),
		Kind:  kind,
		X:     numArg(args, "x"),
		Y:     numArg(args, "y"),
		Color: strArg(args, "color"),
	}

	size := numArg(args, "size")
	if kind == scene.KindCircle {
		el.Radius = size / 2
	} else {
		el.Width = size
		el.Height = size
	}

	return scene.Add{Element: el}, true
}

func mapAddText(args map[string]interface{}) (scene.Command, bool) {
	el := scene.Element{
		ID:       newElementID(),
		Kind:     scene.KindText,
		X:        numArg(args, "x"),
		Y:        numArg(args, "y"),
		Text:     strArg(args, "text"),
		Color:    defaultTextColor,
		FontSize: defaultTextFontSize,
	}

	if color := strArg(args, "color"); color != "" {
		el.Color = color
	}
	if _, ok := args["fontSize"]; ok {
		el.FontSize = numArg(args, "fontSize")
	}

	return scene.Add{Element: el}, true
}

// mapRemoveElement picks the nearest element to the target point. A candidate
// must be strictly closer than the best seen so far and within the proximity
// threshold, so exact-distance ties go to the first element in walk order.
func mapRemoveElement(args map[string]interface{}, elements []scene.Element) (scene.Command, bool) {
	x := numArg(args, "x")
	y := numArg(args, "y")

	closestID := ""
	closestDist := math.MaxFloat64

	for _, el := range elements {
		dist := math.Hypot(el.X-x, el.Y-y)
		if dist < closestDist && dist <= removeProximity {
			closestID = el.ID
			closestDist = dist
		}
	}

	if closestID == "" {
		return nil, false
	}
	return scene.Remove{ID: closestID}, true
}

func shapeKind(v interface{}) (scene.Kind, bool) {
	s, _ := v.(string)
	switch s {
	case "rect":
		return scene.KindRect, true
	case "circle":
		return scene.KindCircle, true
	case "triangle":
		return scene.KindTriangle, true
	default:
		return "", false
	}
}

func numArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func strArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func newElementID() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source does.
		panic(err)
	}
	return id
}
