// Package upstream is the edge proxy's HTTP client to the central server,
// used both for live request forwarding and by the sync engine to drain the
// local queue.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"retlister/internal/models"
)

// ProbeTimeout bounds every upstream round trip: a probe failure within 5s
// marks the sync tick offline without blocking it.
const ProbeTimeout = 5 * time.Second

const userAgent = "retlister-proxy/1.0"

// Client talks to the central server's HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a Client. token is the bearer service token minted by
// cmd/admin-token; baseURL is the central server's root, e.g.
// "http://localhost:8000".
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: ProbeTimeout,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, models.NewInternalError("failed to encode upstream request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, models.NewInternalError("failed to build upstream request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError(fmt.Sprintf("upstream %s %s unreachable", method, path), err)
	}
	return resp, nil
}

// Ping checks /health for liveness.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return models.NewUpstreamError(fmt.Sprintf("upstream health check returned %d", resp.StatusCode), nil)
	}
	return nil
}

// ListPlanks fetches the full authoritative inventory, used for cache warming.
func (c *Client) ListPlanks(ctx context.Context) ([]models.Plank, error) {
	resp, err := c.do(ctx, http.MethodGet, "/list", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeUpstreamError(resp)
	}

	var planks []models.Plank
	if err := json.NewDecoder(resp.Body).Decode(&planks); err != nil {
		return nil, models.NewInternalError("failed to decode upstream plank list", err)
	}
	return planks, nil
}

// CreatePlank POSTs a local plank upstream and returns the upstream-assigned
// plank (its id may differ from the local one, triggering an id remap).
func (c *Client) CreatePlank(ctx context.Context, p models.Plank) (*models.Plank, error) {
	resp, err := c.do(ctx, http.MethodPost, "/add", p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeUpstreamError(resp)
	}

	var created models.Plank
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, models.NewInternalError("failed to decode upstream create response", err)
	}
	return &created, nil
}

// DeletePlank removes a plank upstream. A 404 is treated as success: the
// desired end state (the row being gone) already holds.
func (c *Client) DeletePlank(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/remove/%d", id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeUpstreamError(resp)
	}
	return nil
}

// SearchPlanks proxies a best-match search request upstream.
func (c *Client) SearchPlanks(ctx context.Context, q models.SearchQuery) ([]models.Plank, error) {
	resp, err := c.do(ctx, http.MethodPost, "/search", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeUpstreamError(resp)
	}

	var planks []models.Plank
	if err := json.NewDecoder(resp.Body).Decode(&planks); err != nil {
		return nil, models.NewInternalError("failed to decode upstream search response", err)
	}
	return planks, nil
}

// DeleteBatch issues the upstream-only batch delete; there is no local
// fallback for this call.
func (c *Client) DeleteBatch(ctx context.Context, ids []int64) (map[string]int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/delete_batch", map[string][]int64{"ids": ids})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeUpstreamError(resp)
	}

	var result map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, models.NewInternalError("failed to decode upstream delete_batch response", err)
	}
	return result, nil
}

func decodeUpstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return models.NewUpstreamError(
		fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, string(body)), nil,
	)
}
