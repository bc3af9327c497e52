// Package nodeapi is the HTTP client for the admin API exposed by managed
// search nodes. The supervisor uses it for health probes, the stats collector
// for snapshots and the task runners for index administration.
package nodeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
)

// Client talks to a single node's admin API. Endpoints are passed per call
// because one client serves every managed node.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a node API client. The timeout bounds each request end
// to end; per-call contexts may shorten it further.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ping checks that the node answers its health endpoint
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/_health", nil)
	if err != nil {
		return errdefs.Internal("failed to build health request").WithCause(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.Timeout("node at %s is not answering", endpoint).WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errdefs.IO("node at %s reported status %d", endpoint, resp.StatusCode)
	}
	return nil
}

type statsPayload struct {
	Indices []models.IndexStats `json:"indices"`
	Memory  models.MemoryStats  `json:"memory"`
}

// Stats fetches the node's index and memory statistics
func (c *Client) Stats(ctx context.Context, endpoint string) ([]models.IndexStats, models.MemoryStats, error) {
	var payload statsPayload
	if err := c.get(ctx, endpoint+"/_stats", &payload); err != nil {
		return nil, models.MemoryStats{}, err
	}
	return payload.Indices, payload.Memory, nil
}

// CreateIndex creates an index on the node. Settings may be nil.
func (c *Client) CreateIndex(ctx context.Context, endpoint, index string, settings json.RawMessage) error {
	var body io.Reader
	if len(settings) > 0 {
		body = bytes.NewReader(settings)
	}
	return c.send(ctx, http.MethodPut, fmt.Sprintf("%s/indexes/%s", endpoint, index), body)
}

// DeleteIndex removes an index from the node
func (c *Client) DeleteIndex(ctx context.Context, endpoint, index string) error {
	return c.send(ctx, http.MethodDelete, fmt.Sprintf("%s/indexes/%s", endpoint, index), nil)
}

// Reindex rebuilds an index in place
func (c *Client) Reindex(ctx context.Context, endpoint, index string) error {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("%s/indexes/%s/_reindex", endpoint, index), nil)
}

// BulkParse submits a bulk document parse job against an index
func (c *Client) BulkParse(ctx context.Context, endpoint, index string, payload json.RawMessage) error {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	return c.send(ctx, http.MethodPost, fmt.Sprintf("%s/indexes/%s/_bulk", endpoint, index), body)
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errdefs.Internal("failed to build request").WithCause(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.Timeout("request to %s failed", url).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errdefs.IO("failed to decode response from %s", url).WithCause(err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, url string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errdefs.Internal("failed to build request").WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.Timeout("request to %s failed", url).WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

func responseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errdefs.NotFound("node reported %s not found", resp.Request.URL.Path)
	case http.StatusConflict:
		return errdefs.Conflict("node rejected %s with a conflict", resp.Request.URL.Path)
	case http.StatusBadRequest:
		return errdefs.Validation("node rejected request to %s", resp.Request.URL.Path)
	default:
		return errdefs.IO("node returned status %d for %s", resp.StatusCode, resp.Request.URL.Path)
	}
}
