package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
)

// DecodeOutput parses raw model output into extractions. It tolerates
// markdown fences, prose around the JSON object, a bare top-level array,
// and non-string attribute values. Records with an empty class are dropped.
func DecodeOutput(raw string) ([]models.Extraction, error) {
	payload := locateJSON(stripFences(raw))
	if payload == "" {
		return nil, errs.ModelCall("decode output", fmt.Errorf("no JSON found in model output %q", preview(raw)))
	}

	d := json.NewDecoder(strings.NewReader(payload))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, errs.ModelCall("decode output", fmt.Errorf("malformed JSON: %w", err))
	}
	if arr, ok := v.([]any); ok {
		v = map[string]any{"extractions": arr}
	}

	coerce(v)
	if err := outputSchema.Validate(v); err != nil {
		return nil, errs.ModelCall("decode output", fmt.Errorf("output does not match schema: %w", err))
	}

	items := v.(map[string]any)["extractions"].([]any)
	out := make([]models.Extraction, 0, len(items))
	for _, item := range items {
		m := item.(map[string]any)
		class := strings.TrimSpace(m["extraction_class"].(string))
		if class == "" {
			continue
		}
		e := models.Extraction{
			Class:      class,
			Text:       m["extraction_text"].(string),
			Attributes: map[string]string{},
		}
		if attrs, ok := m["attributes"].(map[string]any); ok {
			for k, val := range attrs {
				e.Attributes[k] = val.(string)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// stripFences returns the body of the first ``` fenced block, or s.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// locateJSON trims anything before the first opening bracket and after the
// matching last closing bracket.
func locateJSON(s string) string {
	s = strings.TrimSpace(s)
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	open, closer := obj, byte('}')
	if obj < 0 || (arr >= 0 && arr < obj) {
		open, closer = arr, ']'
	}
	if open < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, closer)
	if end < open {
		return ""
	}
	return s[open : end+1]
}

// coerce rewrites scalar attribute and text values to strings in place so
// models that emit numbers or booleans still validate.
func coerce(v any) {
	root, ok := v.(map[string]any)
	if !ok {
		return
	}
	items, ok := root["extractions"].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, present := m["extraction_text"]; present {
			m["extraction_text"] = stringify(t)
		}
		if c, present := m["extraction_class"]; present && c != nil {
			m["extraction_class"] = stringify(c)
		}
		switch attrs := m["attributes"].(type) {
		case nil:
			delete(m, "attributes")
		case map[string]any:
			for k, val := range attrs {
				attrs[k] = stringify(val)
			}
		}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}

func preview(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
