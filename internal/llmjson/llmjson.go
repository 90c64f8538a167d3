// Package llmjson decodes the JSON objects language models return, tolerating
// Markdown code fences and loosely typed field values.
package llmjson

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StripFences unwraps a Markdown code fence (with or without a json language
// tag) around a model response. Text without a fence is returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 2 {
		return s
	}
	inner := strings.TrimPrefix(parts[1], "json")
	return strings.TrimSpace(inner)
}

// DecodeObject strips fences and unmarshals a single JSON object.
func DecodeObject(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(StripFences(s)), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// String reads a string field, formatting numbers and booleans. Absent or
// null fields yield the fallback.
func String(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}

// Float reads a numeric field, parsing numeric strings. Absent, null or
// unparsable fields yield the fallback.
func Float(m map[string]any, key string, fallback float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}
