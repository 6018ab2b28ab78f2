package tools

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// NormalizeArguments parses the raw accumulated argument payload into a map.
// Providers hand us either a JSON object, a JSON-encoded string wrapping an
// object, or garbage (truncated streams, stray markdown fences). Malformed
// input is first run through jsonrepair; if that still fails the result is
// an empty object, so a bad argument payload degrades the single call
// rather than the turn.
func NormalizeArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	if args, ok := decodeArguments(raw); ok {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err == nil {
		if args, ok := decodeArguments(repaired); ok {
			return args
		}
	}
	return map[string]any{}
}

func decodeArguments(raw string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		// Double-encoded: the value itself is a JSON object in a string.
		var inner map[string]any
		if err := json.Unmarshal([]byte(t), &inner); err == nil {
			return inner, true
		}
	}
	return nil, false
}

// ApplySchemaDefaults fills every schema-declared required argument missing
// from args with its schema default, in place. Required arguments without a
// default are left missing; the tool's own validation owns that failure.
func ApplySchemaDefaults(args map[string]any, schema map[string]any) {
	if schema == nil {
		return
	}
	required, _ := schema["required"].([]any)
	if len(required) == 0 {
		if names, ok := schema["required"].([]string); ok {
			for _, n := range names {
				required = append(required, n)
			}
		}
	}
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		return
	}

	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := args[name]; present {
			continue
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if def, ok := prop["default"]; ok {
			args[name] = def
		}
	}
}
