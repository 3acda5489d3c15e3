package main

import (
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "readabook",
	Short: "Public-domain book retrieval and reading service",
	Long: `Readabook fetches public-domain books from a catalog API and a plain-text
archive, caches them in memory and serves them as navigable chapters.

The service includes:
  - Listing and metadata caching with request coalescing
  - Bounded full-text caching
  - Chapter segmentation of raw plain-text books
  - Upstream back-off handling, optionally shared through Redis`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
