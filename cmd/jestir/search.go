package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/graph"
	"github.com/harms-haus/jestir/internal/match"
	"github.com/harms-haus/jestir/internal/resolve"
)

func searchCmd() *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "search [name]",
		Short: "Look a name up in the knowledge graph and score the match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args[0], entityType)
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "expected entity type (character, location, item)")
	return cmd
}

func runSearch(name, entityType string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	client := graph.NewClient(cfg.Graph)
	resolver := resolve.NewResolver(client, match.New(cfg.Matcher), slog.Default())

	outcome, err := resolver.Resolve(ctx, []resolve.Candidate{{Name: name, Type: entityType}})
	if err != nil {
		return err
	}
	if len(outcome.Resolved) == 0 {
		fmt.Fprintf(os.Stdout, "No graph match for %q.\n", name)
		return nil
	}

	res := outcome.Resolved[0].Match
	fmt.Fprintf(os.Stdout, "%s (%s) confidence %.2f [%s]\n", res.Record.Name, res.Record.Type, res.Confidence, res.Band)
	if res.Record.Description != "" {
		fmt.Fprintf(os.Stdout, "  %s\n", res.Record.Description)
	}
	fmt.Fprintf(os.Stdout, "  %s\n", res.Reason)
	return nil
}
