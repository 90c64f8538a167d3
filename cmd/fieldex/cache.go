package main

import (
	"fmt"

	"github.com/spf13/cobra"

	logpkg "github.com/parchment-labs/fieldex/internal/logger"
	"github.com/parchment-labs/fieldex/internal/repository/indexcache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the on-disk index cache",
	}

	cmd.AddCommand(cacheListCmd())
	cmd.AddCommand(cacheDeleteCmd())

	return cmd
}

func cacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached document indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logpkg.NewCLILogger(verbose)
			defer func() { _ = logger.Sync() }()

			cache := indexcache.New(cfg.Cache.Dir, logger)
			entries := cache.List()
			if len(entries) == 0 {
				fmt.Println("cache is empty")
				return nil
			}

			headerColor.Printf("Cached indexes in %s\n", cfg.Cache.Dir)
			for _, m := range entries {
				fmt.Printf("  %s  %-30s", m.DocumentHash, m.Filename)
				faintColor.Printf("  %d chunks, %s/%s, %s\n",
					m.NumChunks, m.ChunkingConfig.Algorithm, m.ChunkingConfig.Mode,
					m.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func cacheDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <hash>",
		Short: "Delete one cached index by document hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logpkg.NewCLILogger(verbose)
			defer func() { _ = logger.Sync() }()

			cache := indexcache.New(cfg.Cache.Dir, logger)
			if !cache.Delete(args[0]) {
				return fmt.Errorf("no cached index for hash %s", args[0])
			}
			okColor.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
