// Package httpapi implements the sync transport against the grocery REST
// API. It is the only place where HTTP responses are turned into tagged
// errors; everything above it switches on the error kind, never on status
// codes.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
	"github.com/c0deZ3R0/go-cart-sync/entity"
	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
)

// Client talks to the grocery API. It implements both cartsync.Transport
// (replaying pending actions) and cartsync.Fetcher (authoritative reads).
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
	userAgent string
}

var (
	_ cartsync.Transport = (*Client)(nil)
	_ cartsync.Fetcher   = (*Client)(nil)
)

// ClientOption configures a Client using the functional options pattern
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithAuthToken sets the bearer token attached to every request
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the API at baseURL, e.g.
// "https://grocery.example.com". Endpoints from pending actions are
// appended to it verbatim.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "go-cart-sync",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execute replays one pending action. A transport-level failure (no HTTP
// response at all) comes back as a network error; any non-2xx response is
// classified by status.
func (c *Client) Execute(ctx context.Context, action *cartsync.PendingAction) error {
	var body io.Reader
	if len(action.Payload) > 0 {
		body = bytes.NewReader(action.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, action.Method, c.baseURL+action.Endpoint, body)
	if err != nil {
		return syncErrors.NewClientError(syncErrors.OpExecute, 0, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.NewNetworkError(syncErrors.OpExecute, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return syncErrors.FromStatus(syncErrors.OpExecute, resp.StatusCode, apiError(resp))
}

// FetchLists retrieves the authoritative list collection.
func (c *Client) FetchLists(ctx context.Context) ([]entity.ListWithCounts, error) {
	var lists []entity.ListWithCounts
	if err := c.getJSON(ctx, "/api/lists", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// FetchItems retrieves the authoritative items of one list.
func (c *Client) FetchItems(ctx context.Context, listID string) ([]entity.Item, error) {
	var items []entity.Item
	if err := c.getJSON(ctx, "/api/lists/"+listID+"/items", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchCategories retrieves the authoritative category collection.
func (c *Client) FetchCategories(ctx context.Context) ([]entity.Category, error) {
	var categories []entity.Category
	if err := c.getJSON(ctx, "/api/categories", &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return syncErrors.NewClientError(syncErrors.OpFetch, 0, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.NewNetworkError(syncErrors.OpFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return syncErrors.FromStatus(syncErrors.OpFetch, resp.StatusCode, apiError(resp))
	}

	var envelope struct {
		Data  json.RawMessage  `json:"data"`
		Error *entity.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return syncErrors.NewServerError(syncErrors.OpFetch, resp.StatusCode, fmt.Errorf("malformed response envelope: %w", err))
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return syncErrors.NewServerError(syncErrors.OpFetch, resp.StatusCode, fmt.Errorf("malformed response data: %w", err))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// apiError extracts the machine-readable error from the response envelope,
// falling back to the raw body when the envelope is absent.
func apiError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var envelope entity.APIResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if len(body) > 0 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
