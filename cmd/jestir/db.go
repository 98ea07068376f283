package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/harms-haus/jestir/internal/usage"
	"github.com/harms-haus/jestir/internal/usage/postgres"
	"github.com/harms-haus/jestir/internal/usage/sqlite"
)

func openUsageStore(ctx context.Context, dsn string) (usage.Store, error) {
	var store usage.Store
	var err error
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		store, err = sqlite.New(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err = postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported usage DSN scheme in %q", dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close(ctx)
		return nil, err
	}
	return store, nil
}
