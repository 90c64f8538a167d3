package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/parchment-labs/fieldex/internal/config"
	"github.com/parchment-labs/fieldex/internal/version"
)

var verbose bool // overridable via --verbose flag

func main() {
	root := &cobra.Command{
		Use:   "fieldex",
		Short: "fieldex: PDF field extraction with zero-shot and RAG LLM flows",
		Long: `fieldex extracts structured fields from PDF documents with an LLM,
either zero-shot over the full text or RAG over a chunked vector index,
and measures the two flows against each other.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(compareCmd())
	root.AddCommand(benchmarkCmd())
	root.AddCommand(cacheCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("fieldex " + version.String())
		},
	}
}

// loadConfig reads config/<ENV>.yaml. A missing file is not fatal for CLI
// runs: defaults plus OPENAI_API_KEY / OPENAI_BASE_URL from the environment
// are enough to talk to a provider. Parse errors still surface.
func loadConfig() (config.Config, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, err
	}

	cfg = config.Config{}
	cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Provider.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.ApplyDefaults()
	if verr := cfg.Validate(); verr != nil {
		return config.Config{}, verr
	}
	return cfg, nil
}
