// Package client provides a Go SDK for talking to one agreement node over
// its HTTP/JSON RPC surface, so callers don't have to hand-build requests
// against internal/agreement's routes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to exactly one agreement node. It does not implement any
// consensus logic itself — proposing, preparing, and learning all happen
// on the node side; this is just the HTTP transport wrapped in a clean API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the node at baseURL (e.g. "http://localhost:8080").
// A zero timeout defaults to 10s so callers never hang forever on a wedged
// peer.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Info reports the node's identity, as served by GET /.
type Info struct {
	NodeID  uint64 `json:"node_id"`
	Address string `json:"address"`
}

// Info fetches the node's identity.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("info request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result Info
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Connect asks the node to dial target and register it as a peer, via
// POST /connect.
func (c *Client) Connect(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/connect", bytes.NewReader([]byte(target)))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// Propose asks the node to run the full prepare/accept/learn algorithm for
// value, via POST /initiate. It returns once the node reports the value
// agreed by a majority, or the error the node returned.
func (c *Client) Propose(ctx context.Context, value string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/initiate", bytes.NewReader([]byte(value)))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("propose request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts a non-2xx HTTP response into an APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &APIError{Status: resp.StatusCode, Message: string(body)}
}
