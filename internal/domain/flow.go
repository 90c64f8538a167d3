package domain

// FlowMetrics is the cost side of one extraction flow invocation: wall
// clock, token usage and priced cost. Err is set when the flow produced no
// results; the numbers then reflect whatever was spent before it failed.
type FlowMetrics struct {
	TotalTime       float64       `json:"total_time"` // seconds
	AvgTimePerField float64       `json:"avg_time_per_field,omitempty"`
	LLMInputTokens  int           `json:"llm_input_tokens"`
	LLMOutputTokens int           `json:"llm_output_tokens"`
	LLMTotalTokens  int           `json:"llm_total_tokens"`
	EmbeddingTokens int           `json:"embedding_tokens"`
	TotalTokens     int           `json:"total_tokens"`
	APICalls        int           `json:"api_calls"`
	LLMCalls        int           `json:"llm_calls"`
	EmbeddingCalls  int           `json:"embedding_calls"`
	Cost            CostBreakdown `json:"cost"`
	Err             string        `json:"error,omitempty"`
}

// FlowSideResult is one flow's answer for one master field, scored.
type FlowSideResult struct {
	Value         string  `json:"value"`
	Match         string  `json:"match"`
	Score         int     `json:"score"`
	Confidence    float64 `json:"confidence"`
	Hallucination int     `json:"hallucination"`
}

// FieldComparison is one master field graded against both flows.
type FieldComparison struct {
	FieldName   string         `json:"field_name"`
	MasterValue string         `json:"master_value"`
	ZeroShot    FlowSideResult `json:"zero_shot"`
	RAG         FlowSideResult `json:"rag"`
}

// FlowSummary rolls one flow's results up against the master fields.
// Percentages are over the master field count, rounded to one decimal.
type FlowSummary struct {
	Accuracy         float64 `json:"accuracy"`
	PartialMatch     float64 `json:"partial_match"`
	ExactMatches     int     `json:"exact_matches"`
	PartialMatches   int     `json:"partial_matches"`
	Mismatches       int     `json:"mismatches"`
	AvgHallucination float64 `json:"avg_hallucination"`
	FieldCoverage    float64 `json:"field_coverage"`
}

// FlowReport is the head-to-head comparison of zero-shot and RAG extraction
// over one document and its master fields.
type FlowReport struct {
	Fields          []FieldComparison `json:"fields"`
	ZeroShotSummary FlowSummary       `json:"zero_shot_summary"`
	RAGSummary      FlowSummary       `json:"rag_summary"`
}
