package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/contextfile"
	"github.com/harms-haus/jestir/internal/mcp"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ledger, err := openUsageStore(ctx, cfg.Usage.DSN)
	if err != nil {
		slog.Warn("usage ledger unavailable, serving context counters only", "error", err)
		ledger = nil
	} else {
		defer ledger.Close(ctx)
	}

	server := mcp.NewServer(contextfile.NewStore(contextPath), ledger, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
