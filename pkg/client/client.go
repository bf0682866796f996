package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the control API of a running orchestrator.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultBaseURL matches the address the CLI suggests for [api] listen.
const DefaultBaseURL = "http://127.0.0.1:7070"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a control API client. The API is plain HTTP on loopback;
// there is nothing to negotiate.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if an orchestrator is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	var hz HealthzResponse
	if err := c.getJSON(ctx, c.baseURL+"/healthz", &hz); err != nil {
		c.logger.Debug("orchestrator unreachable", "error", err)
		return false
	}
	return hz.Status == "ok"
}

// Healthz returns the orchestrator's own liveness report.
func (c *Client) Healthz(ctx context.Context) (HealthzResponse, error) {
	var hz HealthzResponse
	err := c.getJSON(ctx, c.baseURL+"/healthz", &hz)
	return hz, err
}

// Statuses returns the status of every tracked service.
func (c *Client) Statuses(ctx context.Context) ([]ServiceStatus, error) {
	var sts []ServiceStatus
	if err := c.getJSON(ctx, c.baseURL+"/status", &sts); err != nil {
		return nil, err
	}
	return sts, nil
}

// Status returns the status of one service by name.
func (c *Client) Status(ctx context.Context, name string) (ServiceStatus, error) {
	var st ServiceStatus
	u := c.baseURL + "/status?name=" + url.QueryEscape(name)
	err := c.getJSON(ctx, u, &st)
	return st, err
}

// Stop asks the orchestrator to stop one service. An empty name stops
// the whole run.
func (c *Client) Stop(ctx context.Context, name string) error {
	u := c.baseURL + "/stop"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	c.logger.Debug("requesting stop", "name", name)
	return c.doRequest(ctx, http.MethodPost, u)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with common error handling
func (c *Client) doRequest(ctx context.Context, method, url string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.handleErrorResponse(resp)
}

// handleErrorResponse turns non-200 responses into errors
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
