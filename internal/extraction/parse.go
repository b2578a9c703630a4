package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/wolfman30/intake-agent/internal/appointment"
)

// ErrMalformed marks an oracle response that is not a usable JSON object.
var ErrMalformed = errors.New("extraction: malformed oracle response")

var (
	responseSchemaOnce sync.Once
	responseSchema     *gojsonschema.Schema
	responseSchemaErr  error
)

// loadResponseSchema builds a schema for the extraction object: every known
// field is a scalar, a list of scalars, or null. Unknown keys are tolerated.
func loadResponseSchema() (*gojsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		value := map[string]any{
			"type":  []string{"string", "number", "integer", "null", "array"},
			"items": map[string]any{"type": []string{"string", "number", "integer", "null"}},
		}
		props := make(map[string]any)
		for _, f := range appointment.AllFields() {
			props[string(f)] = value
		}
		doc := map[string]any{
			"$schema":    "http://json-schema.org/draft-07/schema#",
			"type":       "object",
			"properties": props,
		}
		responseSchema, responseSchemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	})
	return responseSchema, responseSchemaErr
}

// ParseResponse turns raw oracle text into a Context. It tolerates markdown
// fences and prose around the object. A field whose value has the wrong shape
// is dropped and the rest are kept; only a body that is not a JSON object is
// ErrMalformed.
func ParseResponse(raw string) (appointment.Context, error) {
	out, _, err := parseResponse(raw)
	return out, err
}

// parseResponse is ParseResponse that also reports the keys it dropped.
func parseResponse(raw string) (appointment.Context, []string, error) {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return appointment.Context{}, nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return appointment.Context{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return appointment.Context{}, nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	schema, err := loadResponseSchema()
	if err != nil {
		return appointment.Context{}, nil, fmt.Errorf("extraction: compile schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return appointment.Context{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var dropped []string
	for _, e := range result.Errors() {
		key, _, _ := strings.Cut(e.Field(), ".")
		if slices.Contains(dropped, key) {
			continue
		}
		if _, ok := fields[key]; !ok {
			return appointment.Context{}, nil, fmt.Errorf("%w: %s", ErrMalformed, e.String())
		}
		delete(fields, key)
		dropped = append(dropped, key)
	}

	kept, err := json.Marshal(fields)
	if err != nil {
		return appointment.Context{}, nil, fmt.Errorf("extraction: re-encode fields: %w", err)
	}
	var out appointment.Context
	if err := json.Unmarshal(kept, &out); err != nil {
		return appointment.Context{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, dropped, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// extractJSONObject slices from the first "{" to the last "}" so chatter
// before or after the object is dropped.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
