// Package source reads raw sensor payloads from the upstream context broker.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/energy-monitor/backend/internal/models"
)

// maxBodySize bounds a single payload read.
const maxBodySize = 1 << 20

// Fetcher reads the latest payload of one sensor.
type Fetcher interface {
	Fetch(ctx context.Context, sensorID string) (models.Payload, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Service     string // fiware-service header
	ServicePath string // fiware-servicepath header
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client fetches <base>/<sensor-id>.json with the tenant headers.
type Client struct {
	baseURL     string
	service     string
	servicePath string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient creates an upstream client.
func NewClient(opts Options) (*Client, error) {
	if _, err := url.Parse(opts.BaseURL); err != nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		service:     opts.Service,
		servicePath: opts.ServicePath,
		timeout:     opts.Timeout,
		httpClient:  httpClient,
	}, nil
}

// URL returns the endpoint of a sensor.
func (c *Client) URL(sensorID string) string {
	return c.baseURL + "/" + url.PathEscape(sensorID) + ".json"
}

// Fetch performs one bounded GET for a sensor. Errors can be mapped with
// Classify.
func (c *Client) Fetch(ctx context.Context, sensorID string) (models.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(sensorID), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.service != "" {
		req.Header.Set("fiware-service", c.service)
	}
	if c.servicePath != "" {
		req.Header.Set("fiware-servicepath", c.servicePath)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", sensorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &StatusError{SensorID: sensorID, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", sensorID, err)
	}

	var payload models.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrDecode, sensorID, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w from %s: empty body", ErrDecode, sensorID)
	}

	return payload, nil
}
