// Package mockdata calls the external mock-record generation service.
package mockdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"f2b/internal/httpclient"
)

// Generator turns sample documents into a batch of mock records.
type Generator interface {
	Generate(ctx context.Context, samples map[string]any) ([]map[string]any, error)
}

type response struct {
	Data []map[string]any `json:"data"`
}

// Client posts samples to a mock-data HTTP endpoint and expects {"data": [...]}.
type Client struct {
	http *resty.Client
	url  string
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{http: httpclient.NewClient("mockdata", timeout), url: strings.TrimSpace(url)}
}

func (c *Client) Generate(ctx context.Context, samples map[string]any) ([]map[string]any, error) {
	if samples == nil {
		samples = map[string]any{}
	}
	var out response
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(samples).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("mockdata: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mockdata: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 512))
	}
	return out.Data, nil
}

// Disabled is used when no mock-data service is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, map[string]any) ([]map[string]any, error) { return nil, nil }

// New returns a Client for url, or Disabled when url is empty.
func New(url string, timeout time.Duration) Generator {
	if strings.TrimSpace(url) == "" {
		return Disabled{}
	}
	return NewClient(url, timeout)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
