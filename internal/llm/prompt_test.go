package llm

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/docextract/models"
)

var auditExamples = []models.ExtractionExample{{
	Text: "Reference 2024-002 Federal Agency: U.S. Department of Treasury Questioned Costs: None",
	Extractions: []models.Extraction{
		{Class: "audit_finding", Text: "Reference", Attributes: map[string]string{"reference": "2024-002", "agency": "U.S. Department of Treasury"}},
		{Class: "questioned_costs", Text: "None", Attributes: map[string]string{"amount": "None"}},
	},
}}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		Text:              "Reference 2024-003 Federal Agency: USDA",
		PromptDescription: "  Extract federal award findings.  ",
		Examples:          auditExamples,
	}
	prompt := BuildPrompt(req)

	assert.True(t, strings.HasPrefix(prompt, "Extract federal award findings."))
	assert.Contains(t, prompt, "Examples")
	assert.Contains(t, prompt, `"extraction_class": "audit_finding"`)
	assert.Contains(t, prompt, `"agency": "U.S. Department of Treasury"`)
	assert.True(t, strings.HasSuffix(prompt, "Text:\nReference 2024-003 Federal Agency: USDA\nOutput:\n"))
	assert.NotContains(t, prompt, "```")

	// example output precedes the window text
	assert.Less(t, strings.Index(prompt, "2024-002"), strings.Index(prompt, "2024-003"))
}

func TestBuildPromptFenced(t *testing.T) {
	prompt := BuildPrompt(Request{Text: "x", PromptDescription: "d", Examples: auditExamples, FenceOutput: true})
	assert.Contains(t, prompt, "```json\n{")
}

func TestExampleOutputRoundTripsThroughDecoder(t *testing.T) {
	out, err := DecodeOutput(renderOutput(auditExamples[0].Extractions, true))
	require.NoError(t, err)
	assert.Equal(t, auditExamples[0].Extractions, out)
}

func TestResponseSchemaValidatesExampleOutput(t *testing.T) {
	schemaJSON, err := json.Marshal(ResponseSchema(auditExamples))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("response.json", bytes.NewReader(schemaJSON)))
	schema, err := compiler.Compile("response.json")
	require.NoError(t, err)

	var good any
	require.NoError(t, json.Unmarshal([]byte(`{"extractions": [{"extraction_class": "audit_finding", "extraction_text": "Reference",
		"attributes": {"agency": "USDA", "amount": "", "reference": "2024-003"}}]}`), &good))
	assert.NoError(t, schema.Validate(good))

	var unknownClass any
	require.NoError(t, json.Unmarshal([]byte(`{"extractions": [{"extraction_class": "dog", "extraction_text": "x",
		"attributes": {"agency": "", "amount": "", "reference": ""}}]}`), &unknownClass))
	assert.Error(t, schema.Validate(unknownClass))
}

func TestGeminiSchema(t *testing.T) {
	s := geminiSchema(auditExamples)
	item := s.Properties["extractions"].Items
	assert.Equal(t, []string{"audit_finding", "questioned_costs"}, item.Properties["extraction_class"].Enum)
	assert.Contains(t, item.Properties["attributes"].Properties, "agency")

	bare := geminiSchema(nil)
	assert.NotContains(t, bare.Properties["extractions"].Items.Properties, "attributes")
}
