package llm

import (
	"testing"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{
			name: "plain object",
			raw:  `{"extractions": [{"extraction_class": "finding", "extraction_text": "2024-002", "attributes": {"agency": "Treasury"}}]}`,
			want: 1,
		},
		{
			name: "fenced with prose",
			raw:  "Here you go:\n```json\n{\"extractions\": [{\"extraction_class\": \"finding\", \"extraction_text\": \"x\"}]}\n```\nDone.",
			want: 1,
		},
		{
			name: "bare array",
			raw:  `[{"extraction_class": "a", "extraction_text": "b"}, {"extraction_class": "c", "extraction_text": "d"}]`,
			want: 2,
		},
		{
			name: "empty list",
			raw:  `{"extractions": []}`,
			want: 0,
		},
		{
			name: "empty class dropped",
			raw:  `{"extractions": [{"extraction_class": " ", "extraction_text": "b"}, {"extraction_class": "c", "extraction_text": "d"}]}`,
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeOutput(tt.raw)
			require.NoError(t, err)
			assert.Len(t, out, tt.want)
			for _, e := range out {
				assert.NotEmpty(t, e.Class)
				assert.NotNil(t, e.Attributes)
			}
		})
	}
}

func TestDecodeOutputCoercesAttributes(t *testing.T) {
	raw := `{"extractions": [{"extraction_class": "cost", "extraction_text": 4033404,
		"attributes": {"amount": 4033404, "repeat": false, "ratio": 0.5, "missing": null, "tags": ["a", "b"]}}]}`
	out, err := DecodeOutput(raw)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "4033404", out[0].Text)
	assert.Equal(t, map[string]string{
		"amount":  "4033404",
		"repeat":  "false",
		"ratio":   "0.5",
		"missing": "",
		"tags":    `["a","b"]`,
	}, out[0].Attributes)
}

func TestDecodeOutputMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not find anything.",
		`{"extractions": [{"extraction_class": "a"`,
		`{"results": []}`,
		`{"extractions": [{"extraction_text": "no class"}]}`,
		`{"extractions": "nope"}`,
	} {
		_, err := DecodeOutput(raw)
		assert.ErrorIs(t, err, errs.ErrModelCall, "raw=%q", raw)
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "{}\n", stripFences("```json\n{}\n```"))
	assert.Equal(t, "{}\n", stripFences("```\n{}\n```"))
	assert.Equal(t, "no fences", stripFences("no fences"))
}
