package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/graph"
)

func labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the entity labels the knowledge graph knows",
		Args:  cobra.NoArgs,
		RunE:  runLabels,
	}
}

func runLabels(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	labels, err := graph.NewClient(cfg.Graph).ListLabels(ctx)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		fmt.Fprintln(os.Stdout, "The graph knows no entities yet.")
		return nil
	}
	for _, label := range labels {
		fmt.Fprintln(os.Stdout, label)
	}
	return nil
}
