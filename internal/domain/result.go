package domain

// Extraction is a single field value pulled from context by the model,
// with the model's own confidence (0-100) and its stated reasoning.
type Extraction struct {
	Value      string
	Confidence float64
	Reason     string
}

// RetrievedChunk is one index hit mapped back to its source chunk.
// Distance is squared Euclidean; Confidence is the cosine-derived score
// in [0, 100] rounded to two decimals.
type RetrievedChunk struct {
	Chunk      string  `json:"chunk"`
	Position   int     `json:"position"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// FieldResult is the outcome of extracting one field. Success and failure
// share the same shape so aggregation never branches on missing keys:
// a failed extraction has Value "ERROR", Confidence 0 and Err set to the
// underlying error text.
type FieldResult struct {
	FieldName  string  `json:"field_name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	NumChunks  int     `json:"num_chunks,omitempty"`
	Err        string  `json:"error,omitempty"`
}

// Failed reports whether this result is the error variant.
func (r FieldResult) Failed() bool { return r.Err != "" }

// NewFieldResult builds the success variant.
func NewFieldResult(name string, ex Extraction, numChunks int) FieldResult {
	return FieldResult{
		FieldName:  name,
		Value:      ex.Value,
		Confidence: ex.Confidence,
		Reason:     ex.Reason,
		NumChunks:  numChunks,
	}
}

// NewFieldError builds the error variant for a failed extraction.
func NewFieldError(name string, err error) FieldResult {
	return FieldResult{
		FieldName: name,
		Value:     "ERROR",
		Reason:    err.Error(),
		Err:       err.Error(),
	}
}
