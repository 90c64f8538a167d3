package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parchment-labs/fieldex/internal/domain"
	logpkg "github.com/parchment-labs/fieldex/internal/logger"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

// extractReport is the JSON shape written by --output.
type extractReport struct {
	ID        string               `json:"id"`
	Filename  string               `json:"filename"`
	Hash      string               `json:"document_hash"`
	FromCache bool                 `json:"index_from_cache"`
	CreatedAt time.Time            `json:"created_at"`
	Fields    []domain.FieldResult `json:"fields"`
}

func extractCmd() *cobra.Command {
	var (
		fieldsPath string
		output     string
		noCache    bool
		chunking   chunkingOpts
	)

	cmd := &cobra.Command{
		Use:   "extract <document>",
		Short: "Extract fields from a document with retrieval-augmented extraction",
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
			defs, err := readFieldDefs(fieldsPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := engine.sessions.Build(ctx, sessionuc.Request{
				Text:      text,
				Filename:  filename,
				Chunking:  chunking.apply(cfg.Chunking),
				SkipCache: noCache,
			})
			if err != nil {
				return err
			}

			headerColor.Printf("Extracting %d fields from %s (%d chunks)\n",
				len(defs), filename, len(sess.Chunks))
			results := engine.extraction.ExtractAll(ctx, sess, defs)
			printFieldResults(results)

			if output != "" {
				return writeJSONFile(output, extractReport{
					ID:        uuid.NewString(),
					Filename:  filename,
					Hash:      sess.Hash,
					FromCache: sess.FromCache,
					CreatedAt: time.Now().UTC(),
					Fields:    results,
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&fieldsPath, "fields", "f", "", "JSON file naming the fields to extract (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to a JSON file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "rebuild the index even when a cached one exists")
	registerChunkingFlags(cmd, &chunking)
	_ = cmd.MarkFlagRequired("fields")

	return cmd
}
