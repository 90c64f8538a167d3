// Package benchmark runs repeated extraction trials under pacing and compares
// chunking algorithms head to head on the same query.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
)

const (
	// DefaultRuns is the trial count per algorithm pass.
	DefaultRuns = 5
	// MaxRuns caps a single benchmark; anything above it burns quota for noise.
	MaxRuns = 10
	// DefaultTopK is how many chunks each trial retrieves.
	DefaultTopK = 5
)

// Service runs benchmarks.
type Service struct {
	builder   SessionBuilder
	retriever Retriever
	extractor Extractor
	pacer     Pacer
	logger    *zap.Logger

	topK int
	now  func() time.Time // injected for tests
}

// New creates a benchmark service.
func New(builder SessionBuilder, retriever Retriever, extractor Extractor, pacer Pacer, logger *zap.Logger) *Service {
	return &Service{
		builder:   builder,
		retriever: retriever,
		extractor: extractor,
		pacer:     pacer,
		logger:    logger,
		topK:      DefaultTopK,
		now:       time.Now,
	}
}

// WithTopK overrides how many chunks each trial retrieves.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// Run executes fn runs times against the same query and collects one record
// per run, in order. A failed run becomes an ERROR record and doubles the
// pause before the next one; the batch never shrinks. runs is clamped to
// [1, MaxRuns].
func (s *Service) Run(ctx context.Context, query string, fn ExtractFunc, runs int) []domain.RunRecord {
	if runs < 1 {
		runs = 1
	}
	if runs > MaxRuns {
		runs = MaxRuns
	}

	records := make([]domain.RunRecord, 0, runs)
	for i := 0; i < runs; i++ {
		if err := s.pacer.Wait(ctx); err != nil {
			// Контекст отменён: оставшиеся прогоны помечаются, а не зависают.
			for j := i; j < runs; j++ {
				records = append(records, errorRecord(j+1, err))
			}
			break
		}

		start := s.now()
		value, confidence, numChunks, err := fn(ctx, query)
		elapsed := s.now().Sub(start)
		if err != nil {
			s.logger.Warn("Benchmark run failed",
				zap.Int("run", i+1),
				zap.Error(err),
			)
			records = append(records, errorRecord(i+1, err))
			s.pacer.RecordError()
			continue
		}

		records = append(records, domain.RunRecord{
			Run:        i + 1,
			Value:      value,
			Confidence: confidence,
			TimeMS:     round1(float64(elapsed) / float64(time.Millisecond)),
			NumChunks:  numChunks,
		})
	}
	return records
}

func errorRecord(run int, err error) domain.RunRecord {
	return domain.RunRecord{Run: run, Value: "ERROR", Err: err.Error()}
}

// RunSession benchmarks the standard RAG trial (retrieve + two-step extract)
// against an already prepared session.
func (s *Service) RunSession(ctx context.Context, sess *domain.Session, query string, runs int) []domain.RunRecord {
	return s.Run(ctx, query, s.trial(sess), runs)
}

// CompareRequest describes one algorithm comparison. The chunking config is
// shared between passes; its Algorithm is overridden per pass.
type CompareRequest struct {
	Query    string
	Text     string
	Chunking domain.ChunkingConfig
	// Runs per algorithm; zero means DefaultRuns.
	Runs int
}

// CompareAlgorithms benchmarks the same query once per chunking algorithm,
// rebuilding chunks, embeddings and a fresh index for every pass. An
// algorithm whose session cannot be built is skipped; when every algorithm
// is skipped the comparison fails with ErrNoUsableAlgorithm.
func (s *Service) CompareAlgorithms(ctx context.Context, req CompareRequest) (map[domain.Algorithm]domain.AlgoSummary, error) {
	runs := req.Runs
	if runs == 0 {
		runs = DefaultRuns
	}

	algos := domain.Algorithms()
	summaries := make(map[domain.Algorithm]domain.AlgoSummary, len(algos))
	for i, algo := range algos {
		cfg := req.Chunking
		cfg.Algorithm = algo

		sess, err := s.builder.Build(ctx, req.Text, cfg)
		if err != nil {
			s.logger.Warn("Algorithm pass skipped",
				zap.String("algorithm", string(algo)),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Benchmarking algorithm",
			zap.String("algorithm", string(algo)),
			zap.Int("chunks", sess.NumChunks()),
			zap.Int("runs", runs),
		)
		results := s.Run(ctx, req.Query, s.trial(sess), runs)
		summaries[algo] = summarize(results, sess.NumChunks())

		// Удвоенная пауза между проходами.
		if i < len(algos)-1 {
			s.pacer.RecordError()
		}
	}

	if len(summaries) == 0 {
		return nil, fmt.Errorf("compare algorithms: %w", domain.ErrNoUsableAlgorithm)
	}
	return summaries, nil
}

// trial builds the per-run extraction: retrieve over the pass's session, join
// the chunks, run the fast two-step extraction.
func (s *Service) trial(sess *domain.Session) ExtractFunc {
	return func(ctx context.Context, query string) (string, float64, int, error) {
		retrieved, err := s.retriever.Retrieve(ctx, sess, query, s.topK)
		if err != nil {
			return "", 0, 0, fmt.Errorf("retrieve context: %w", err)
		}

		parts := make([]string, len(retrieved))
		for i, r := range retrieved {
			parts[i] = r.Chunk
		}
		ex, err := s.extractor.ExtractFieldSimple(ctx, query, strings.Join(parts, "\n"))
		if err != nil {
			return "", 0, 0, err
		}
		return ex.Value, round1(ex.Confidence), len(retrieved), nil
	}
}

// summarize aggregates one pass. Averages, consistency and the modal value
// cover successful runs only; a modal tie keeps the value seen first.
func summarize(results []domain.RunRecord, numChunks int) domain.AlgoSummary {
	summary := domain.AlgoSummary{Results: results, NumChunks: numChunks}

	var confSum, timeSum float64
	counts := make(map[string]int)
	order := make([]string, 0, len(results))
	ok := 0
	for _, r := range results {
		if r.Failed() {
			continue
		}
		ok++
		confSum += r.Confidence
		timeSum += r.TimeMS
		if _, seen := counts[r.Value]; !seen {
			order = append(order, r.Value)
		}
		counts[r.Value]++
	}
	if ok == 0 {
		return summary
	}

	summary.AvgConfidence = round2(confSum / float64(ok))
	summary.AvgTimeMS = round1(timeSum / float64(ok))
	summary.Consistency = len(counts)

	best := 0
	for _, v := range order {
		if counts[v] > best {
			best = counts[v]
			summary.MostCommon = v
		}
	}
	return summary
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
