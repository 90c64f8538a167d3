// Package chi is the JSON/HTTP transport exposing the extraction engine to
// the external UI. Handlers are thin: decode, call a usecase service, encode.
// The transport owns the only mutable server state — the registry of prepared
// document sessions — so the engine itself stays stateless.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/pdf"
	"github.com/parchment-labs/fieldex/internal/repository/indexcache"
	analysisuc "github.com/parchment-labs/fieldex/internal/usecase/analysis"
	benchmarkuc "github.com/parchment-labs/fieldex/internal/usecase/benchmark"
	extractionuc "github.com/parchment-labs/fieldex/internal/usecase/extraction"
	flowuc "github.com/parchment-labs/fieldex/internal/usecase/flow"
	healthuc "github.com/parchment-labs/fieldex/internal/usecase/health"
	retrievaluc "github.com/parchment-labs/fieldex/internal/usecase/retrieval"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

// maxUploadBytes caps PDF uploads; scanned documents can be big, extracted
// text cannot.
const maxUploadBytes = 32 << 20

// errorCode is the machine-readable error tag in JSON error envelopes.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeNotFound         errorCode = "document_not_found"
	codeEmptyDocument    errorCode = "empty_document"
	codeRateLimited      errorCode = "rate_limited"
	codeQuotaExceeded    errorCode = "quota_exceeded"
	codeProviderError    errorCode = "provider_error"
	codeUnparsable       errorCode = "unparsable_response"
	codeInternalError    errorCode = "internal_error"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes engine operations over HTTP.
type Server struct {
	sessions   *sessionuc.Service
	retrieval  *retrievaluc.Service
	analysis   *analysisuc.Service
	extraction *extractionuc.Service
	flows      *flowuc.Service
	benchmarks *benchmarkuc.Service
	cache      *indexcache.Cache
	health     *healthuc.Service
	logger     *zap.Logger

	// active holds sessions prepared during this process's lifetime; they
	// carry the document text, which the disk cache does not persist.
	mu     sync.RWMutex
	active map[string]*domain.Session

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	sessions *sessionuc.Service,
	retrieval *retrievaluc.Service,
	analysis *analysisuc.Service,
	extraction *extractionuc.Service,
	flows *flowuc.Service,
	benchmarks *benchmarkuc.Service,
	cache *indexcache.Cache,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sessions:   sessions,
		retrieval:  retrieval,
		analysis:   analysis,
		extraction: extraction,
		flows:      flows,
		benchmarks: benchmarks,
		cache:      cache,
		health:     health,
		logger:     logger,
		active:     make(map[string]*domain.Session),
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, codeEmptyDocument),
		sentinelHandler(domain.ErrInvalidChunking, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNoFields, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmptyEmbeddings, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrUnparsableResponse, http.StatusBadGateway, codeUnparsable),
		sentinelHandler(domain.ErrNoUsableAlgorithm, http.StatusUnprocessableEntity, codeBadRequest),
	}
	return s
}

// Routes mounts all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Post("/documents", s.UploadDocument)
	r.Get("/documents", s.ListDocuments)
	r.Get("/documents/{hash}", s.GetDocument)
	r.Delete("/documents/{hash}", s.DeleteDocument)
	r.Get("/documents/{hash}/search", s.SearchDocument)
	r.Post("/documents/{hash}/extract", s.ExtractFields)
	r.Post("/documents/{hash}/flows/rag", s.RunRAGFlow)
	r.Post("/documents/{hash}/benchmark", s.RunBenchmark)

	r.Post("/analyze", s.AnalyzeDocument)
	r.Post("/flows/zero-shot", s.RunZeroShotFlow)
	r.Post("/flows/compare", s.CompareFlows)
	r.Post("/benchmark/algorithms", s.CompareAlgorithms)
}

// --- documents ---

type uploadRequest struct {
	Text     string                `json:"text"`
	Filename string                `json:"filename"`
	Chunking domain.ChunkingConfig `json:"chunking"`
}

type documentResponse struct {
	DocumentHash string                `json:"document_hash"`
	Filename     string                `json:"filename"`
	NumChunks    int                   `json:"num_chunks"`
	Chunking     domain.ChunkingConfig `json:"chunking"`
	FromCache    bool                  `json:"from_cache"`
	CreatedAt    time.Time             `json:"created_at"`
	Length       int                   `json:"document_length"`
}

// UploadDocument handles POST /documents. The body is either a JSON
// uploadRequest with raw text or a multipart form with a PDF under "file";
// chunking parameters ride in form fields for the multipart case.
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Build(r.Context(), sessionuc.Request{
		Text:     req.Text,
		Filename: req.Filename,
		Chunking: req.Chunking,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.mu.Lock()
	s.active[sess.Hash] = sess
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, documentToResponse(sess))
}

func (s *Server) decodeUpload(r *http.Request) (uploadRequest, error) {
	var req uploadRequest

	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, fmt.Errorf("parse multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return req, fmt.Errorf("missing file part: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return req, fmt.Errorf("read upload: %w", err)
		}
		text, err := pdf.Read(data)
		if err != nil {
			return req, fmt.Errorf("extract pdf text: %w", err)
		}
		req.Text = text
		req.Filename = header.Filename
		req.Chunking = chunkingFromForm(r)
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

// chunkingFromForm binds chunking parameters from multipart form values.
// Malformed numbers fall back to the defaults rather than failing an upload.
func chunkingFromForm(r *http.Request) domain.ChunkingConfig {
	cfg := domain.ChunkingConfig{
		Algorithm: domain.Algorithm(r.FormValue("algorithm")),
		Mode:      domain.Mode(r.FormValue("mode")),
	}
	if n, err := strconv.Atoi(r.FormValue("size")); err == nil {
		cfg.Size = n
	}
	if n, err := strconv.Atoi(r.FormValue("overlap")); err == nil {
		cfg.Overlap = n
	}
	return cfg
}

// ListDocuments handles GET /documents: every cached document's metadata.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.cache.List()})
}

// GetDocument handles GET /documents/{hash}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(sess))
}

// DeleteDocument handles DELETE /documents/{hash}: drops the session and the
// cached index files.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	s.mu.Lock()
	_, active := s.active[hash]
	delete(s.active, hash)
	s.mu.Unlock()

	deleted := s.cache.Delete(hash)
	if !deleted && !active {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// SearchDocument handles GET /documents/{hash}/search?query=...&top_k=N.
func (s *Server) SearchDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query parameter is required")
		return
	}
	var topK int
	if err := runtime.BindQueryParameter("form", true, false, "top_k", r.URL.Query(), &topK); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be an integer")
		return
	}

	chunks, err := s.retrieval.Retrieve(r.Context(), sess, query, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": chunks})
}

// --- extraction & flows ---

type fieldsRequest struct {
	Fields []domain.FieldDefinition `json:"fields"`
}

// ExtractFields handles POST /documents/{hash}/extract: full RAG extraction
// of every requested field.
func (s *Server) ExtractFields(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}

	var req fieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "fields are required")
		return
	}

	results := s.extraction.ExtractAll(r.Context(), sess, req.Fields)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// AnalyzeDocument handles POST /analyze: LLM field discovery over raw text.
func (s *Server) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	fields, err := s.analysis.AnalyzeDocument(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

type zeroShotRequest struct {
	Text           string                   `json:"text"`
	Fields         []domain.FieldDefinition `json:"fields"`
	PromptTemplate string                   `json:"prompt_template,omitempty"`
}

type flowResponse struct {
	Results []domain.FieldResult `json:"results"`
	Metrics domain.FlowMetrics   `json:"metrics"`
}

// RunZeroShotFlow handles POST /flows/zero-shot. A flow that produced no
// results still answers 200: the metrics carry the error, mirroring how the
// engine reports it to every other consumer.
func (s *Server) RunZeroShotFlow(w http.ResponseWriter, r *http.Request) {
	var req zeroShotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" || len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "text and fields are required")
		return
	}

	results, metrics := s.flows.ZeroShot(r.Context(), req.Text, req.Fields, req.PromptTemplate)
	writeJSON(w, http.StatusOK, flowResponse{Results: results, Metrics: metrics})
}

// RunRAGFlow handles POST /documents/{hash}/flows/rag.
func (s *Server) RunRAGFlow(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}

	var req fieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "fields are required")
		return
	}

	results, metrics := s.flows.RAG(r.Context(), sess, req.Fields)
	writeJSON(w, http.StatusOK, flowResponse{Results: results, Metrics: metrics})
}

type compareRequest struct {
	MasterFields    []domain.MasterField `json:"master_fields"`
	ZeroShotResults []domain.FieldResult `json:"zero_shot_results"`
	RAGResults      []domain.FieldResult `json:"rag_results"`
	Text            string               `json:"text"`
}

// CompareFlows handles POST /flows/compare: grades both result sets against
// the master fields. Pure computation, no provider calls.
func (s *Server) CompareFlows(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.MasterFields) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "master_fields are required")
		return
	}

	report := flowuc.Compare(req.MasterFields, req.ZeroShotResults, req.RAGResults, req.Text)
	writeJSON(w, http.StatusOK, report)
}

// --- benchmarking ---

type benchmarkRequest struct {
	Query string `json:"query"`
	Runs  int    `json:"runs"`
}

// RunBenchmark handles POST /documents/{hash}/benchmark.
func (s *Server) RunBenchmark(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "document not found")
		return
	}

	var req benchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}

	records := s.benchmarks.RunSession(r.Context(), sess, req.Query, req.Runs)
	writeJSON(w, http.StatusOK, map[string]any{"results": records})
}

type compareAlgorithmsRequest struct {
	Text     string                `json:"text"`
	Query    string                `json:"query"`
	Chunking domain.ChunkingConfig `json:"chunking"`
	Runs     int                   `json:"runs"`
}

// CompareAlgorithms handles POST /benchmark/algorithms.
func (s *Server) CompareAlgorithms(w http.ResponseWriter, r *http.Request) {
	var req compareAlgorithmsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "text and query are required")
		return
	}

	summaries, err := s.benchmarks.CompareAlgorithms(r.Context(), benchmarkuc.CompareRequest{
		Query:    req.Query,
		Text:     req.Text,
		Chunking: req.Chunking,
		Runs:     req.Runs,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"algorithms": summaries})
}

// --- health & metrics ---

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// --- helpers ---

// session resolves a document hash to a live session, falling back to the
// disk cache. Cache-restored sessions carry no document text; operations
// that need it (zero-shot, analysis) take text explicitly instead.
func (s *Server) session(hash string) (*domain.Session, bool) {
	if hash == "" {
		return nil, false
	}
	s.mu.RLock()
	sess, ok := s.active[hash]
	s.mu.RUnlock()
	if ok {
		return sess, true
	}

	sess, ok = s.cache.LoadSession(hash)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	s.active[hash] = sess
	s.mu.Unlock()
	return sess, true
}

func documentToResponse(sess *domain.Session) documentResponse {
	return documentResponse{
		DocumentHash: sess.Hash,
		Filename:     sess.Filename,
		NumChunks:    sess.NumChunks(),
		Chunking:     sess.Chunking,
		FromCache:    sess.FromCache,
		CreatedAt:    sess.CreatedAt,
		Length:       len(sess.Text),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyDocument,
		domain.ErrInvalidChunking,
		domain.ErrNoFields,
		domain.ErrEmptyEmbeddings,
		domain.ErrIndexNotFound,
		domain.ErrRateLimited,
		domain.ErrQuotaExceeded,
		domain.ErrProviderUnavailable,
		domain.ErrProviderError,
		domain.ErrUnparsableResponse,
		domain.ErrNoUsableAlgorithm,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
