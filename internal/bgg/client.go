package bgg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamecatalog/internal/catalog"
)

const (
	// MaxBatchSize is the upstream cap on identifiers per thing request.
	MaxBatchSize = 20
	// TypeVersion requests boardgameversion entries.
	TypeVersion = "boardgameversion"

	maxBodyBytes = 32 << 20
)

// ThingRequest describes one call to the thing endpoint.
type ThingRequest struct {
	IDs      []catalog.Identifier
	Type     string
	Stats    bool
	Comments bool
	PageSize int
}

// Query renders the request parameters. Identifiers stay comma-joined rather
// than percent-encoded.
func (r ThingRequest) Query() string {
	var b strings.Builder
	b.WriteString("id=")
	b.WriteString(catalog.JoinIdentifiers(r.IDs))
	if r.Type != "" {
		b.WriteString("&type=")
		b.WriteString(r.Type)
	}
	if r.Stats {
		b.WriteString("&stats=1")
	}
	if r.Comments {
		b.WriteString("&comments=1")
		if r.PageSize > 0 {
			b.WriteString("&pagesize=")
			b.WriteString(strconv.Itoa(r.PageSize))
		}
	}
	return b.String()
}

// Response is the raw outcome of one request.
type Response struct {
	Status  int
	Body    []byte
	Host    string
	Latency time.Duration
}

// Client performs thing requests against any configured host.
type Client struct {
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken attaches a static bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if agent = strings.TrimSpace(agent); agent != "" {
			c.userAgent = agent
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a client.
func New(opts ...Option) *Client {
	client := &Client{
		userAgent:  "gamecatalog/dev",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Fetch issues req against host. Transport failures are returned as errors;
// any HTTP status, including failures, is reported through Response.
func (c *Client) Fetch(ctx context.Context, host string, req ThingRequest) (Response, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return Response{}, errors.New("bgg host required")
	}
	if len(req.IDs) == 0 {
		return Response{}, errors.New("thing request requires at least one identifier")
	}
	if len(req.IDs) > MaxBatchSize {
		return Response{}, fmt.Errorf("thing request has %d identifiers (max %d)", len(req.IDs), MaxBatchSize)
	}

	endpoint := host + "/thing?" + req.Query()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/xml")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return Response{Host: host, Latency: latency}, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency = time.Since(requestStart)
	if err != nil {
		return Response{Status: resp.StatusCode, Host: host, Latency: latency}, fmt.Errorf("read response body: %w", err)
	}
	return Response{Status: resp.StatusCode, Body: body, Host: host, Latency: latency}, nil
}
