package main

import (
	"github.com/spf13/cobra"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// chunkingOpts carries the chunking flags shared by extract, compare and
// benchmark. Unset flags defer to the config file.
type chunkingOpts struct {
	algorithm string
	mode      string
	size      int
	overlap   int
}

func registerChunkingFlags(cmd *cobra.Command, o *chunkingOpts) {
	cmd.Flags().StringVar(&o.algorithm, "algorithm", "", "chunking algorithm: sliding_window or recursive")
	cmd.Flags().StringVar(&o.mode, "mode", "", "chunking mode: paragraph, sentence or token")
	cmd.Flags().IntVar(&o.size, "chunk-size", 0, "chunk size in mode units")
	cmd.Flags().IntVar(&o.overlap, "overlap", -1, "chunk overlap in mode units")
}

func (o chunkingOpts) apply(base domain.ChunkingConfig) domain.ChunkingConfig {
	if o.algorithm != "" {
		base.Algorithm = domain.Algorithm(o.algorithm)
	}
	if o.mode != "" {
		base.Mode = domain.Mode(o.mode)
	}
	if o.size > 0 {
		base.Size = o.size
	}
	if o.overlap >= 0 {
		base.Overlap = o.overlap
	}
	return base.WithDefaults()
}
