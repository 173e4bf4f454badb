package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoJSON is returned when a model answer carries no JSON object.
var ErrNoJSON = errors.New("no json object in model answer")

// ExtractJSON returns the first balanced JSON object found in raw, after
// stripping markdown code fences.
func ExtractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}

	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
				return raw[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}

// Schema is a compiled JSON schema for model answers.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a schema given as a Go map.
func CompileSchema(name string, schemaMap map[string]any) (*Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema panics on an invalid schema. Use for package-level schemas.
func MustCompileSchema(name string, schemaMap map[string]any) *Schema {
	s, err := CompileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode extracts the JSON object from raw, validates it and returns it as a map.
func (s *Schema) Decode(raw string) (map[string]any, error) {
	cleaned, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse model answer: %w", err)
	}
	if err := s.schema.Validate(data); err != nil {
		return nil, fmt.Errorf("model answer does not match schema: %w", err)
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("model answer is not an object")
	}
	return obj, nil
}

// DecodeInto decodes a validated answer map into out with weak typing, so
// "80" and 80 are both accepted for numeric fields.
func DecodeInto(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}

// Clamp100 rounds f into an integer in [0, 100]. NaN becomes def.
func Clamp100(f float64, def int) int {
	if math.IsNaN(f) {
		return def
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}
