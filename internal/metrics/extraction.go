package metrics

import "github.com/prometheus/client_golang/prometheus"

// Field extraction Prometheus metrics.
var (
	ExtractionFieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldex",
			Name:      "extraction_fields_total",
			Help:      "Total number of extracted fields",
		},
		[]string{"method", "status"}, // method: "rag" / "zero_shot"
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fieldex",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction duration in seconds: per field for rag, per call for zero_shot",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	IndexCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldex",
			Name:      "index_cache_total",
			Help:      "Disk index cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// FieldStatus maps an extracted value to the status label of
// ExtractionFieldsTotal. "N/A" is the model's own not-found marker, "ERROR"
// is the error-variant field result.
func FieldStatus(value string) string {
	switch value {
	case "", "N/A":
		return "not_found"
	case "ERROR":
		return "error"
	}
	return "ok"
}

var extractionMetricsRegistered bool

// RegisterExtractionMetrics registers Prometheus extraction metrics. Must be called once from main.
func RegisterExtractionMetrics() {
	if extractionMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExtractionFieldsTotal)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(IndexCacheTotal)
	extractionMetricsRegistered = true
}
