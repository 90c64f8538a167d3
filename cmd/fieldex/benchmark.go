package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parchment-labs/fieldex/internal/domain"
	logpkg "github.com/parchment-labs/fieldex/internal/logger"
	benchmarkuc "github.com/parchment-labs/fieldex/internal/usecase/benchmark"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

// benchmarkReport is the JSON shape written by --output.
type benchmarkReport struct {
	ID         string                                 `json:"id"`
	Filename   string                                 `json:"filename"`
	Query      string                                 `json:"query"`
	Runs       int                                    `json:"runs"`
	CreatedAt  time.Time                              `json:"created_at"`
	Records    []domain.RunRecord                     `json:"records,omitempty"`
	Algorithms map[domain.Algorithm]domain.AlgoSummary `json:"algorithms,omitempty"`
}

func benchmarkCmd() *cobra.Command {
	var (
		query      string
		runs       int
		algorithms bool
		output     string
		chunking   chunkingOpts
	)

	cmd := &cobra.Command{
		Use:   "benchmark <document>",
		Short: "Measure extraction stability over repeated runs",
		Long: `Repeats the same retrieval-augmented extraction and reports value
consistency, confidence and latency. With --algorithms the pass is
repeated once per chunking algorithm on fresh throwaway indexes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logpkg.NewCLILogger(verbose)
			defer func() { _ = logger.Sync() }()

			engine, err := buildCore(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			text, filename, err := readDocument(args[0])
			if err != nil {
				return err
			}

			if runs <= 0 {
				runs = cfg.Benchmark.DefaultRuns
			}
			if runs > cfg.Benchmark.MaxRuns {
				runs = cfg.Benchmark.MaxRuns
			}

			ctx := cmd.Context()
			report := benchmarkReport{
				ID:        uuid.NewString(),
				Filename:  filename,
				Query:     query,
				Runs:      runs,
				CreatedAt: time.Now().UTC(),
			}

			if algorithms {
				summaries, err := engine.benchmarks.CompareAlgorithms(ctx, benchmarkuc.CompareRequest{
					Query:    query,
					Text:     text,
					Chunking: chunking.apply(cfg.Chunking),
					Runs:     runs,
				})
				if err != nil {
					return err
				}
				headerColor.Printf("Benchmark of %q over %s, %d runs per algorithm\n", query, filename, runs)
				printAlgoSummaries(summaries)
				report.Algorithms = summaries
			} else {
				sess, err := engine.sessions.Build(ctx, sessionuc.Request{
					Text:     text,
					Filename: filename,
					Chunking: chunking.apply(cfg.Chunking),
				})
				if err != nil {
					return err
				}
				headerColor.Printf("Benchmark of %q over %s (%d chunks), %d runs\n",
					query, filename, len(sess.Chunks), runs)
				records := engine.benchmarks.RunSession(ctx, sess, query, runs)
				printRunRecords(records)
				report.Records = records
			}

			if output != "" {
				return writeJSONFile(output, report)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "field query to benchmark (required)")
	cmd.Flags().IntVarP(&runs, "runs", "n", 0, "number of repetitions (default from config)")
	cmd.Flags().BoolVar(&algorithms, "algorithms", false, "compare chunking algorithms instead of a single pass")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write benchmark results to a JSON file")
	registerChunkingFlags(cmd, &chunking)
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
