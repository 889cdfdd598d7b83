package llm

import (
	"sort"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Epistemic-Technology/docextract/models"
)

// outputSchema validates decoded model output after attribute coercion.
var outputSchema = jsonschema.MustCompileString("extractions.json", `{
	"type": "object",
	"required": ["extractions"],
	"properties": {
		"extractions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["extraction_class", "extraction_text"],
				"properties": {
					"extraction_class": {"type": "string"},
					"extraction_text": {"type": "string"},
					"attributes": {
						"type": "object",
						"additionalProperties": {"type": "string"}
					}
				}
			}
		}
	}
}`)

// exampleShape collects the classes and attribute keys the examples use.
func exampleShape(examples []models.ExtractionExample) (classes []string, keys []string) {
	task := models.Task{Examples: examples}
	classes = task.Classes()

	seen := make(map[string]bool)
	for _, ex := range examples {
		for _, e := range ex.Extractions {
			for k := range e.Attributes {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	sort.Strings(keys)
	return classes, keys
}

// ResponseSchema derives a strict JSON schema for constrained decoding from
// the worked examples: classes become an enum and attribute keys the union
// of every key the examples use.
func ResponseSchema(examples []models.ExtractionExample) map[string]any {
	classes, keys := exampleShape(examples)

	class := map[string]any{"type": "string"}
	if len(classes) > 0 {
		class["enum"] = classes
	}
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = map[string]any{"type": "string"}
	}
	if keys == nil {
		keys = []string{}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"extractions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"extraction_class": class,
						"extraction_text":  map[string]any{"type": "string"},
						"attributes": map[string]any{
							"type":                 "object",
							"properties":           props,
							"required":             keys,
							"additionalProperties": false,
						},
					},
					"required":             []string{"extraction_class", "extraction_text", "attributes"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"extractions"},
		"additionalProperties": false,
	}
}

// geminiSchema is ResponseSchema expressed as a genai.Schema.
func geminiSchema(examples []models.ExtractionExample) *genai.Schema {
	classes, keys := exampleShape(examples)

	item := map[string]*genai.Schema{
		"extraction_class": {Type: genai.TypeString},
		"extraction_text":  {Type: genai.TypeString},
	}
	if len(classes) > 0 {
		item["extraction_class"] = &genai.Schema{Type: genai.TypeString, Format: "enum", Enum: classes}
	}
	// an object schema needs at least one property
	if len(keys) > 0 {
		attrs := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, k := range keys {
			attrs.Properties[k] = &genai.Schema{Type: genai.TypeString}
		}
		item["attributes"] = attrs
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"extractions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: item,
					Required:   []string{"extraction_class", "extraction_text"},
				},
			},
		},
		Required: []string{"extractions"},
	}
}
