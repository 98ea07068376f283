package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
)

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Report token usage and estimated cost",
		Args:  cobra.NoArgs,
		RunE:  runUsage,
	}
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ledger, err := openUsageStore(ctx, cfg.Usage.DSN)
	if err != nil {
		return err
	}
	defer ledger.Close(ctx)

	summary, err := ledger.Summarize(ctx)
	if err != nil {
		return err
	}

	if summary.TotalCalls == 0 {
		fmt.Fprintln(os.Stdout, "No usage recorded yet.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Total: %d calls, %d tokens, $%.4f\n",
		summary.TotalCalls, summary.TotalTokens, summary.TotalCostUSD)
	for _, mt := range summary.Models {
		fmt.Fprintf(os.Stdout, "  %-20s %d calls, %d tokens, $%.4f\n",
			mt.Model, mt.Calls, mt.Tokens, mt.CostUSD)
	}
	return nil
}
