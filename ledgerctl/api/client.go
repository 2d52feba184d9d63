// Package api talks to a running node's status server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"healthledger/api/server"
	"healthledger/core/validation"
)

// DefaultBaseURL matches the node's default status_addr.
const DefaultBaseURL = "http://localhost:8090"

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) GetStatus(ctx context.Context) (server.StatusResponse, error) {
	var out server.StatusResponse
	return out, c.do(ctx, http.MethodGet, "/status", &out)
}

func (c *Client) GetHealth(ctx context.Context) (server.NodeHealthResponse, error) {
	var out server.NodeHealthResponse
	return out, c.do(ctx, http.MethodGet, "/nodehealth", &out)
}

// GetLiveness reports false, not an error, when the node answers 503.
func (c *Client) GetLiveness(ctx context.Context) (bool, error) {
	var out server.LivenessResponse
	err := c.do(ctx, http.MethodGet, "/health/liveness", &out)
	return out.Alive, err
}

func (c *Client) GetReadiness(ctx context.Context) (bool, error) {
	var out server.ReadinessResponse
	err := c.do(ctx, http.MethodGet, "/health/readiness", &out)
	return out.Ready, err
}

// Validate asks the node to re-run chain validation.
func (c *Client) Validate(ctx context.Context) (validation.Result, error) {
	var out validation.Result
	return out, c.do(ctx, http.MethodPost, "/chain/validate", &out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		var e server.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", path, e.Error)
		}
		return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
