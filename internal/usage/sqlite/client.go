// Package sqlite is the file-backed usage ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harms-haus/jestir/internal/usage"
)

var _ usage.Store = (*Client)(nil)

type Client struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Client, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	return &Client{db: db}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id TEXT PRIMARY KEY,
    service TEXT NOT NULL,
    operation TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    cost_usd REAL NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_model ON usage_records(model);
`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensuring usage schema: %w", err)
	}
	return nil
}

func (c *Client) Append(ctx context.Context, rec usage.Record) error {
	const insert = `
INSERT INTO usage_records (id, service, operation, model, prompt_tokens, completion_tokens, cost_usd, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := c.db.ExecContext(ctx, insert,
		rec.ID, rec.Service, rec.Operation, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD,
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending usage record: %w", err)
	}
	return nil
}

func (c *Client) Summarize(ctx context.Context) (*usage.Summary, error) {
	const query = `
SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens + completion_tokens), 0), COALESCE(SUM(cost_usd), 0)
FROM usage_records
GROUP BY model
ORDER BY model`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("summarizing usage: %w", err)
	}
	defer rows.Close()

	summary := &usage.Summary{}
	for rows.Next() {
		var mt usage.ModelTotal
		if err := rows.Scan(&mt.Model, &mt.Calls, &mt.Tokens, &mt.CostUSD); err != nil {
			return nil, fmt.Errorf("scanning usage summary: %w", err)
		}
		summary.Models = append(summary.Models, mt)
		summary.TotalCalls += mt.Calls
		summary.TotalTokens += mt.Tokens
		summary.TotalCostUSD += mt.CostUSD
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarizing usage: %w", err)
	}
	return summary, nil
}
