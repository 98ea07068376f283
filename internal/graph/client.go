// Package graph is the HTTP client for the remote knowledge-graph service.
// The service is an external collaborator: every call is rate limited,
// retried with backoff, and guarded by a circuit breaker so a down graph
// degrades the pipeline instead of hanging it.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/harms-haus/jestir/internal/config"
)

// ErrUnavailable wraps every transport-level failure after retries are
// exhausted, and circuit-open rejections. Callers branch on it with
// errors.Is to decide between degrading and failing.
var ErrUnavailable = errors.New("knowledge graph unavailable")

// Client talks to the graph service's HTTP API.
type Client struct {
	cfg     config.GraphConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a client from config. The circuit trips after three
// consecutive failures and probes again after the configured timeout.
func NewClient(cfg config.GraphConfig) *Client {
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "graph",
			Timeout: cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type queryResponse struct {
	Response string `json:"response"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// ListLabels returns every entity label the graph knows.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	var labels []string
	if err := c.get(ctx, "/graph/label/list", &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// Query sends a natural-language retrieval query and returns the graph's
// textual response.
func (c *Client) Query(ctx context.Context, query string) (string, error) {
	var out queryResponse
	err := c.do(ctx, http.MethodPost, "/query", queryRequest{Query: query, Mode: c.cfg.QueryMode}, &out)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

// EntityExists reports whether the graph has an entity with exactly this
// label.
func (c *Client) EntityExists(ctx context.Context, name string) (bool, error) {
	var out existsResponse
	path := "/graph/entity/exists?name=" + url.QueryEscape(name)
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do runs one logical request with rate limiting, bounded retry, and the
// circuit breaker. Connection errors, 5xx, and 429 are retried; other
// statuses fail immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling graph request: %w", err)
		}
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		retryable, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) (bool, error) {
	retryable := false
	_, err := c.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
		if err != nil {
			return nil, fmt.Errorf("creating graph request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			retryable = true
			return nil, fmt.Errorf("sending graph request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
			return nil, fmt.Errorf("graph endpoint %s returned status %d: %s", path, resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decoding graph response: %w", err)
			}
		}
		return nil, nil
	})
	return retryable, err
}
