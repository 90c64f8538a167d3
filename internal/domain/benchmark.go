package domain

// RunRecord is one benchmark iteration. A failed run keeps the same shape
// with Value "ERROR", zeroed numbers and Err carrying the cause.
type RunRecord struct {
	Run        int     `json:"run"` // 1-based
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	TimeMS     float64 `json:"time_ms"`
	NumChunks  int     `json:"num_chunks"`
	Err        string  `json:"error,omitempty"`
}

// Failed reports whether this run is the error variant.
func (r RunRecord) Failed() bool { return r.Err != "" }

// AlgoSummary aggregates one chunking algorithm's benchmark pass. Averages
// and the modal value are computed over successful runs only; a pass whose
// runs all failed keeps its raw results with zeroed aggregates.
type AlgoSummary struct {
	Results       []RunRecord `json:"results"`
	NumChunks     int         `json:"num_chunks"`
	AvgConfidence float64     `json:"avg_confidence"`
	AvgTimeMS     float64     `json:"avg_time_ms"`
	Consistency   int         `json:"consistency"`
	MostCommon    string      `json:"most_common_value"`
}
