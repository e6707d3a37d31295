// Package stockbt is a Go SDK for the stockbt-server REST API.
package stockbt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockbt/internal/api"
	"stockbt/internal/domain"
)

// RunRequest describes a backtest to run on the server.
type RunRequest = api.RunRequest

// ErrNotFound is returned when the server does not know the requested run.
var ErrNotFound = errors.New("stockbt: backtest not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockbt: server returned %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the stockbt-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stockbt API client. Backtests run synchronously
// on the server, so the default timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// RunBacktest runs a backtest and returns the stored record.
func (c *Client) RunBacktest(ctx context.Context, req RunRequest) (domain.RunRecord, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("RunBacktest: encode: %w", err)
	}
	var rec domain.RunRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", bytes.NewReader(body), &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("RunBacktest: %w", err)
	}
	return rec, nil
}

// GetBacktest fetches a stored backtest by ID.
func (c *Client) GetBacktest(ctx context.Context, id string) (domain.RunRecord, error) {
	var rec domain.RunRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("GetBacktest: %w", err)
	}
	return rec, nil
}

// ListBacktests returns the most recent backtests, newest first. A limit of
// zero uses the server default.
func (c *Client) ListBacktests(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	path := "/api/v1/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("ListBacktests: %w", err)
	}
	return resp.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
