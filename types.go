package fieldex

import "time"

// Algorithm selects the chunking strategy.
type Algorithm string

// Chunking algorithm constants.
const (
	SlidingWindow Algorithm = "sliding_window"
	Recursive     Algorithm = "recursive"
)

// Mode selects the unit a chunking strategy operates on.
type Mode string

// Chunking mode constants.
const (
	ByParagraph Mode = "paragraph"
	BySentence  Mode = "sentence"
	ByToken     Mode = "token"
)

// ChunkingConfig parameterizes document chunking. Zero values fall back to
// sliding_window over paragraphs, size 200, overlap 20.
type ChunkingConfig struct {
	Algorithm Algorithm
	Mode      Mode
	Size      int
	Overlap   int
}

// Field names one field to extract. Query is the question used to locate it
// in the document; empty means "What is the <name>?".
type Field struct {
	Name  string
	Query string
}

// MasterField is a ground-truth field used to grade extraction output.
type MasterField struct {
	Field
	Value string
}

// FieldResult is the outcome of extracting one field. A failed extraction
// has Value "ERROR", Confidence 0 and Err set to the cause.
type FieldResult struct {
	FieldName  string
	Value      string
	Confidence float64
	Reason     string
	NumChunks  int
	Err        string
}

// Failed reports whether this result is the error variant.
func (r FieldResult) Failed() bool { return r.Err != "" }

// RetrievedChunk is one index hit mapped back to its source chunk.
// Distance is squared Euclidean; Confidence is the cosine-derived score
// in [0, 100].
type RetrievedChunk struct {
	Chunk      string
	Position   int
	Distance   float64
	Confidence float64
}

// CostRates prices tokens in USD per million.
type CostRates struct {
	InputPerMTok     float64
	OutputPerMTok    float64
	EmbeddingPerMTok float64
}

// CostBreakdown is priced token usage in USD.
type CostBreakdown struct {
	Input     float64
	Output    float64
	Embedding float64
	Total     float64
}

// FlowMetrics is the cost side of one extraction flow: wall clock, token
// usage and priced cost. Err is set when the flow produced no results.
type FlowMetrics struct {
	TotalTime       float64 // seconds
	AvgTimePerField float64
	LLMInputTokens  int
	LLMOutputTokens int
	LLMTotalTokens  int
	EmbeddingTokens int
	TotalTokens     int
	APICalls        int
	LLMCalls        int
	EmbeddingCalls  int
	Cost            CostBreakdown
	Err             string
}

// FlowSideResult is one flow's answer for one master field, scored.
// Match is one of "exact", "partial", "fuzzy", "mismatch" or "N/A";
// Hallucination grades unsupported content from 0 (grounded) to 80.
type FlowSideResult struct {
	Value         string
	Match         string
	Score         int
	Confidence    float64
	Hallucination int
}

// FieldComparison is one master field graded against both flows.
type FieldComparison struct {
	FieldName   string
	MasterValue string
	ZeroShot    FlowSideResult
	RAG         FlowSideResult
}

// FlowSummary rolls one flow's results up against the master fields.
type FlowSummary struct {
	Accuracy         float64
	PartialMatch     float64
	ExactMatches     int
	PartialMatches   int
	Mismatches       int
	AvgHallucination float64
	FieldCoverage    float64
}

// FlowReport is the head-to-head comparison of zero-shot and RAG extraction
// over one document and its master fields.
type FlowReport struct {
	Fields          []FieldComparison
	ZeroShotSummary FlowSummary
	RAGSummary      FlowSummary
}

// RunRecord is one benchmark iteration.
type RunRecord struct {
	Run        int
	Value      string
	Confidence float64
	TimeMS     float64
	NumChunks  int
	Err        string
}

// Failed reports whether this run is the error variant.
func (r RunRecord) Failed() bool { return r.Err != "" }

// AlgoSummary aggregates one chunking algorithm's benchmark pass.
type AlgoSummary struct {
	Results       []RunRecord
	NumChunks     int
	AvgConfidence float64
	AvgTimeMS     float64
	Consistency   int
	MostCommon    string
}

// CacheEntry describes one cached document index.
type CacheEntry struct {
	Hash      string
	Filename  string
	NumChunks int
	Chunking  ChunkingConfig
	CreatedAt time.Time
}
