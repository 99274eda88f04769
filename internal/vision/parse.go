package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const payloadSchema = `{
  "type": "object",
  "properties": {
    "text_markdown":   {"type": ["string", "null"]},
    "tables_markdown": {"type": ["string", "null"]},
    "confidence":      {"type": ["number", "null"]},
    "warnings":        {"type": ["array", "null"], "items": {"type": "string"}},
    "missing_notes":   {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("vision.json", strings.NewReader(payloadSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("vision.json")
	})
	return schema, schemaErr
}

type payload struct {
	TextMarkdown   *string  `json:"text_markdown"`
	TablesMarkdown *string  `json:"tables_markdown"`
	Confidence     *float64 `json:"confidence"`
	Warnings       []string `json:"warnings"`
	MissingNotes   *string  `json:"missing_notes"`
}

// Parse decodes a model reply. It accepts a bare JSON object, an object
// embedded in prose or a code fence, and JSON5 relaxations such as unquoted
// keys and trailing commas. Single-quoted strings are not accepted.
func Parse(raw string) (Result, error) {
	v, err := decode(raw)
	if err != nil {
		return Result{}, err
	}
	s, err := compiledSchema()
	if err != nil {
		return Result{}, err
	}
	if err := s.Validate(v); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res := Result{
		TablesMarkdown: p.TablesMarkdown,
		Confidence:     p.Confidence,
		Warnings:       p.Warnings,
	}
	if p.TextMarkdown != nil {
		res.TextMarkdown = *p.TextMarkdown
	}
	if p.MissingNotes != nil {
		res.MissingNotes = *p.MissingNotes
	}
	return res, nil
}

func decode(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		if _, ok := v.(map[string]any); ok {
			return v, nil
		}
	}
	obj := FindObject(raw)
	if obj == "" {
		return nil, ErrMalformed
	}
	v = nil
	if err := json.Unmarshal([]byte(obj), &v); err == nil {
		return v, nil
	}
	v = nil
	if err := json5.Unmarshal([]byte(obj), &v); err == nil {
		if _, ok := v.(map[string]any); ok {
			return v, nil
		}
	}
	return nil, ErrMalformed
}

// FindObject returns the first balanced {...} span in s, skipping braces inside
// double-quoted strings. A single quote is plain text, matching the decoder
// which only accepts double-quoted strings. When no balanced span exists it
// falls back to the text between the first '{' and the last '}'. It returns ""
// when s holds no object.
func FindObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
