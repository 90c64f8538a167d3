package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/pdf"
)

// readDocument loads a document for extraction. PDF files go through the
// text extractor; anything else is read as plain UTF-8 text.
func readDocument(path string) (text, filename string, err error) {
	filename = filepath.Base(path)

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = pdf.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("read pdf %s: %w", path, err)
		}
		return text, filename, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read document %s: %w", path, err)
	}
	return string(data), filename, nil
}

// readFieldDefs parses a field definition file: a JSON array of
// {"field_name": ..., "query": ...} objects, or a plain array of names.
func readFieldDefs(path string) ([]domain.FieldDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fields %s: %w", path, err)
	}

	var defs []domain.FieldDefinition
	if err := json.Unmarshal(data, &defs); err == nil && len(defs) > 0 && defs[0].Name != "" {
		return defs, nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		defs = make([]domain.FieldDefinition, len(names))
		for i, n := range names {
			defs[i] = domain.FieldDefinition{Name: n}
		}
		return defs, nil
	}

	return nil, fmt.Errorf("parse fields %s: expected a JSON array of field objects or names", path)
}

// readMasterFields parses ground truth: a JSON array of
// {"field_name", "query", "value"} objects, or a {"name": "value"} map.
func readMasterFields(path string) ([]domain.MasterField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read master fields %s: %w", path, err)
	}

	var masters []domain.MasterField
	if err := json.Unmarshal(data, &masters); err == nil && len(masters) > 0 && masters[0].Name != "" {
		return masters, nil
	}

	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err == nil && len(kv) > 0 {
		masters = make([]domain.MasterField, 0, len(kv))
		for name, value := range kv {
			masters = append(masters, domain.MasterField{
				FieldDefinition: domain.FieldDefinition{Name: name},
				Value:           value,
			})
		}
		return masters, nil
	}

	return nil, fmt.Errorf("parse master fields %s: expected a JSON array or a name-to-value map", path)
}

// writeJSONFile writes v as indented JSON.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
