// Package prowlarr implements the aggregator API client. The aggregator
// is the sole source of truth for indexer definitions and validity; this
// client only reads definitions, runs test probes, and persists the
// configurations the repair engine decides on.
package prowlarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotatarr/rotatarr/internal/core/domain"
	"github.com/rotatarr/rotatarr/internal/metrics"
)

// ErrUpstreamUnavailable marks failures of the aggregator itself, as
// opposed to a single indexer failing validation. A cycle cannot proceed
// past it.
var ErrUpstreamUnavailable = errors.New("aggregator unavailable")

// Client talks to a Prowlarr-compatible v1 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the given aggregator.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/api/v1/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIRequests.WithLabelValues(path, "error").Inc()
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// ListIndexers fetches all indexer definitions.
func (c *Client) ListIndexers(ctx context.Context) ([]domain.Indexer, error) {
	var out []domain.Indexer
	if _, err := c.do(ctx, http.MethodGet, "indexer", nil, &out); err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	return out, nil
}

// ListStatuses fetches the per-indexer health records.
func (c *Client) ListStatuses(ctx context.Context) ([]domain.IndexerStatus, error) {
	var out []domain.IndexerStatus
	if _, err := c.do(ctx, http.MethodGet, "indexerstatus", nil, &out); err != nil {
		return nil, fmt.Errorf("list indexer statuses: %w", err)
	}
	return out, nil
}

// GetIndexer fetches a single definition, typically to refresh a local
// copy after a save.
func (c *Client) GetIndexer(ctx context.Context, id int) (*domain.Indexer, error) {
	var out domain.Indexer
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("indexer/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get indexer %d: %w", id, err)
	}
	return &out, nil
}

// TestIndexer runs the aggregator's test endpoint against the given
// payload (a full definition or a UI-minimal shape) and classifies the
// result into the transient/permanent taxonomy.
func (c *Client) TestIndexer(ctx context.Context, payload any) domain.TestOutcome {
	status, err := c.do(ctx, http.MethodPost, "indexer/test", payload, nil)
	if err == nil {
		return domain.OK()
	}
	if isTimeout(err) {
		return domain.Transient(status, err.Error())
	}
	if status == http.StatusTooManyRequests {
		return domain.Transient(status, err.Error())
	}
	// Validation rejections, other 4xx and 5xx: this candidate is wrong.
	return domain.Permanent(status, err.Error())
}

// UpdateIndexer persists a definition change (base URL and/or tags).
func (c *Client) UpdateIndexer(ctx context.Context, id int, ix *domain.Indexer) (*domain.Indexer, error) {
	var out domain.Indexer
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("indexer/%d", id), ix, &out); err != nil {
		return nil, fmt.Errorf("update indexer %d: %w", id, err)
	}
	return &out, nil
}

// FindOrCreateTag resolves a tag label to its id, creating it on first use.
func (c *Client) FindOrCreateTag(ctx context.Context, label string) (*domain.Tag, error) {
	var tags []domain.Tag
	if _, err := c.do(ctx, http.MethodGet, "tag", nil, &tags); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	for _, t := range tags {
		if strings.EqualFold(t.Label, label) {
			return &t, nil
		}
	}

	var created domain.Tag
	if _, err := c.do(ctx, http.MethodPost, "tag", domain.Tag{Label: label}, &created); err != nil {
		return nil, fmt.Errorf("create tag %q: %w", label, err)
	}
	return &created, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
