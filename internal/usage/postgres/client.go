// Package postgres is the shared-server usage ledger, for deployments
// where several machines bill against one account.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harms-haus/jestir/internal/usage"
)

var _ usage.Store = (*Client)(nil)

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{pool: pool}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id UUID PRIMARY KEY,
    service TEXT NOT NULL,
    operation TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    cost_usd DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_model ON usage_records(model)`
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring usage schema: %w", err)
	}
	return nil
}

func (c *Client) Append(ctx context.Context, rec usage.Record) error {
	const insert = `
INSERT INTO usage_records (id, service, operation, model, prompt_tokens, completion_tokens, cost_usd, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := c.pool.Exec(ctx, insert,
		rec.ID, rec.Service, rec.Operation, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, rec.CreatedAt)
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
	rows, err := c.pool.Query(ctx, query)
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
