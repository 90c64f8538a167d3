package main

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parchment-labs/fieldex/internal/domain"
	logpkg "github.com/parchment-labs/fieldex/internal/logger"
	flowuc "github.com/parchment-labs/fieldex/internal/usecase/flow"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

// compareReport is the JSON shape written by --output.
type compareReport struct {
	ID              string             `json:"id"`
	Filename        string             `json:"filename"`
	Hash            string             `json:"document_hash"`
	CreatedAt       time.Time          `json:"created_at"`
	Report          domain.FlowReport  `json:"report"`
	ZeroShotMetrics domain.FlowMetrics `json:"zero_shot_metrics"`
	RAGMetrics      domain.FlowMetrics `json:"rag_metrics"`
}

func compareCmd() *cobra.Command {
	var (
		masterPath string
		promptPath string
		output     string
		chunking   chunkingOpts
	)

	cmd := &cobra.Command{
		Use:   "compare <document>",
		Short: "Run zero-shot and RAG extraction head to head against ground truth",
		Args:  cobra.ExactArgs(1),
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
			masters, err := readMasterFields(masterPath)
			if err != nil {
				return err
			}

			var promptTemplate string
			if promptPath != "" {
				data, err := os.ReadFile(promptPath)
				if err != nil {
					return err
				}
				promptTemplate = string(data)
			}

			defs := domain.Definitions(masters)
			ctx := cmd.Context()

			headerColor.Printf("Zero-shot extraction of %d fields from %s\n", len(defs), filename)
			zsResults, zsMetrics := engine.flows.ZeroShot(ctx, text, defs, promptTemplate)

			sess, err := engine.sessions.Build(ctx, sessionuc.Request{
				Text:     text,
				Filename: filename,
				Chunking: chunking.apply(cfg.Chunking),
			})
			if err != nil {
				return err
			}
			headerColor.Printf("RAG extraction over %d chunks\n", len(sess.Chunks))
			ragResults, ragMetrics := engine.flows.RAG(ctx, sess, defs)

			report := flowuc.Compare(masters, zsResults, ragResults, text)

			printFlowReport(report)
			printMetrics("Zero-shot", zsMetrics)
			printMetrics("RAG", ragMetrics)

			if output != "" {
				return writeJSONFile(output, compareReport{
					ID:              uuid.NewString(),
					Filename:        filename,
					Hash:            sess.Hash,
					CreatedAt:       time.Now().UTC(),
					Report:          report,
					ZeroShotMetrics: zsMetrics,
					RAGMetrics:      ragMetrics,
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&masterPath, "master", "m", "", "JSON file with ground-truth field values (required)")
	cmd.Flags().StringVar(&promptPath, "prompt", "", "custom zero-shot prompt template with {FIELDS} and {DOCUMENT} placeholders")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the comparison report to a JSON file")
	registerChunkingFlags(cmd, &chunking)
	_ = cmd.MarkFlagRequired("master")

	return cmd
}
