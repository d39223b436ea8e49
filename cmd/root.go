package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tag-backend/internal/config"
)

// NewRootCmd returns the root cobra command wired with the provided AppConfig.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "tag-backend",
		Short: "TAG backend: conversational SQL over an operational database",
		Long: "A conversational backend that turns natural-language messages about an " +
			"operational database into safe, validated SQL, executes it, and streams " +
			"NDJSON results back to the caller.",
	}
	root.AddCommand(NewServeCmd(cfg))
	return root
}

// Execute is the entrypoint called from main. It loads config, wires the
// command tree, and runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	root := NewRootCmd(cfg)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
