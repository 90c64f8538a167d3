package main

import (
	"fmt"

	"github.com/spf13/cobra"

	logpkg "github.com/parchment-labs/fieldex/internal/logger"
)

func analyzeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "analyze <document>",
		Short: "Ask the model which fields a document contains",
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

			defs, err := engine.analysis.AnalyzeDocument(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", filename, err)
			}

			headerColor.Printf("Fields found in %s\n", filename)
			printFieldDefs(defs)

			if output != "" {
				return writeJSONFile(output, defs)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write field definitions to a JSON file")

	return cmd
}
