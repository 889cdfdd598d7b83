package llm

import (
	"encoding/json"
	"strings"

	"github.com/Epistemic-Technology/docextract/models"
)

// wireExtraction is the JSON shape the model is shown and asked to produce.
type wireExtraction struct {
	Class      string            `json:"extraction_class"`
	Text       string            `json:"extraction_text"`
	Attributes map[string]string `json:"attributes"`
}

type wireOutput struct {
	Extractions []wireExtraction `json:"extractions"`
}

func toWire(exts []models.Extraction) wireOutput {
	out := wireOutput{Extractions: make([]wireExtraction, 0, len(exts))}
	for _, e := range exts {
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		out.Extractions = append(out.Extractions, wireExtraction{Class: e.Class, Text: e.Text, Attributes: attrs})
	}
	return out
}

// BuildPrompt renders the description, each worked example, and finally the
// window text awaiting an answer.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.PromptDescription))
	b.WriteString("\n\nRespond with a JSON object of the form {\"extractions\": [{\"extraction_class\": ..., \"extraction_text\": ..., \"attributes\": {...}}]}.")
	b.WriteString(" Use exact text from the input for extraction_text. Attribute values must be strings.\n")

	if len(req.Examples) > 0 {
		b.WriteString("\nExamples\n")
		for _, ex := range req.Examples {
			b.WriteString("\nText:\n")
			b.WriteString(strings.TrimSpace(ex.Text))
			b.WriteString("\nOutput:\n")
			b.WriteString(renderOutput(ex.Extractions, req.FenceOutput))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nText:\n")
	b.WriteString(req.Text)
	b.WriteString("\nOutput:\n")
	return b.String()
}

func renderOutput(exts []models.Extraction, fence bool) string {
	data, err := json.MarshalIndent(toWire(exts), "", "  ")
	if err != nil {
		// map[string]string and strings always marshal
		panic(err)
	}
	if fence {
		return "```json\n" + string(data) + "\n```"
	}
	return string(data)
}
