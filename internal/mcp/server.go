// Package mcp exposes a story context to MCP clients as read-only tools.
// Writes stay with the CLI pipeline; agents get to look, not touch.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harms-haus/jestir/internal/story"
	"github.com/harms-haus/jestir/internal/usage"
)

// ContextLoader reads the current story context. The file may change
// between tool calls, so every handler loads fresh.
type ContextLoader interface {
	Load() (*story.Context, error)
}

type Server struct {
	loader ContextLoader
	ledger usage.Store
	mcp    *sdk.Server
}

// NewServer builds the MCP server. ledger may be nil when no usage store
// is configured; the usage tool then reports only the context counters.
func NewServer(loader ContextLoader, ledger usage.Store, version string) *Server {
	s := &Server{
		loader: loader,
		ledger: ledger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "jestir",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
