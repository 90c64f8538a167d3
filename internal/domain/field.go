package domain

import "fmt"

// FieldDefinition names one field to extract and the question used to find it.
type FieldDefinition struct {
	Name  string `json:"field_name"`
	Query string `json:"query,omitempty"`
}

// RetrievalQuery returns the question used to locate the field in a document.
// Falls back to a generic question when the analyzer supplied none.
func (f FieldDefinition) RetrievalQuery() string {
	if f.Query != "" {
		return f.Query
	}
	return fmt.Sprintf("What is the %s?", f.Name)
}

// MasterField is a ground-truth field used for scoring extraction output.
type MasterField struct {
	FieldDefinition
	Value string `json:"value"`
}

// Definitions projects master fields onto their extraction definitions.
func Definitions(masters []MasterField) []FieldDefinition {
	defs := make([]FieldDefinition, len(masters))
	for i, m := range masters {
		defs[i] = m.FieldDefinition
	}
	return defs
}
