package toolmap

import (
	"github.com/xeipuuv/gojsonschema"
)

// Definition describes one tool in the shape model providers consume.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

var definitions = []Definition{
	{
		Name:        "draw_shape",
		Description: "Draw a shape on the board. Coordinates and size are in the 0-100 space; size is the diameter for circles and the edge length for rects and triangles.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"type": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"rect", "circle", "triangle"},
				},
				"x":     map[string]interface{}{"type": "number"},
				"y":     map[string]interface{}{"type": "number"},
				"size":  map[string]interface{}{"type": "number"},
				"color": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"type", "x", "y", "size", "color"},
		},
	},
	{
		Name:        "add_text",
		Description: "Place a text label on the board at the given 0-100 coordinates.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text":     map[string]interface{}{"type": "string"},
				"x":        map[string]interface{}{"type": "number"},
				"y":        map[string]interface{}{"type": "number"},
				"color":    map[string]interface{}{"type": "string"},
				"fontSize": map[string]interface{}{"type": "number"},
			},
			"required": []interface{}{"text", "x", "y"},
		},
	},
	{
		Name:        "remove_element",
		Description: "Remove the element nearest to the given 0-100 coordinates.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"x": map[string]interface{}{"type": "number"},
				"y": map[string]interface{}{"type": "number"},
			},
			"required": []interface{}{"x", "y"},
		},
	},
	{
		Name:        "clear_board",
		Description: "Remove every element from the board.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}

var schemasByName = func() map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(definitions))
	for _, def := range definitions {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			// Schemas are package constants; a bad one is a programming error.
			panic(err)
		}
		out[def.Name] = schema
	}
	return out
}()

// Definitions returns the tool declarations advertised to the model service.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// validArgs reports whether args satisfy the named tool's input schema.
func validArgs(name string, args map[string]interface{}) bool {
	schema, ok := schemasByName[name]
	if !ok {
		return false
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return false
	}
	return result.Valid()
}
