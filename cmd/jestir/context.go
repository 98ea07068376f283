package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/contextfile"
	"github.com/harms-haus/jestir/internal/graph"
	"github.com/harms-haus/jestir/internal/llm"
	"github.com/harms-haus/jestir/internal/pipeline"
	"github.com/harms-haus/jestir/internal/usage"
)

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context [input text]",
		Short: "Fold a new story input into the context file",
		Args:  cobra.ExactArgs(1),
		RunE:  runContext,
	}
	return cmd
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := contextfile.NewStore(contextPath)
	sc, err := store.Load()
	if err != nil {
		return err
	}

	ledger, err := openUsageStore(ctx, cfg.Usage.DSN)
	if err != nil {
		slog.Warn("usage ledger unavailable, tracking counters only", "error", err)
		ledger = nil
	} else {
		defer ledger.Close(ctx)
	}

	p := pipeline.New(cfg,
		llm.NewOpenAIClient(cfg.Extraction),
		graph.NewClient(cfg.Graph),
		usage.NewTracker(ledger, slog.Default()),
		slog.Default())

	result, err := p.Run(ctx, sc, args[0])
	if err != nil {
		return err
	}
	if err := store.Save(sc); err != nil {
		return err
	}

	if result.ExtractionFallback {
		fmt.Fprintln(os.Stdout, "Note: language model unavailable, entities extracted by local scan.")
	}
	if result.LookupErr != nil {
		fmt.Fprintln(os.Stdout, "Note: knowledge graph unavailable, entities created as new.")
	}
	for _, d := range result.Decisions {
		line := fmt.Sprintf("  %-8s %s", d.Action, d.Name)
		if d.EntityID != "" {
			line = fmt.Sprintf("  %-8s %s (%s)", d.Action, d.Name, d.EntityID)
		}
		if d.Reason != "" {
			line += ": " + d.Reason
		}
		fmt.Fprintln(os.Stdout, line)
	}
	fmt.Fprintf(os.Stdout, "Context saved to %s (%d entities, %d relationships).\n",
		store.Path(), len(sc.Entities), len(sc.Relationships))
	return nil
}
