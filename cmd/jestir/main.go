package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	contextPath string
	verbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "jestir",
		Short: "Story context engine backed by a knowledge graph",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "jestir.yaml", "project config file")
	root.PersistentFlags().StringVar(&contextPath, "context", "context.yaml", "story context file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(contextCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(labelsCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(usageCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
