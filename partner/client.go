package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowstate/flowcloud"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	DefaultMarkerHeader = "X-App-Request"
	DefaultMarkerValue  = "1"

	maxErrorBody = 4 << 10
)

// Config holds what a partner server needs to call the gateway.
type Config struct {
	// Endpoint is the gateway base URL.
	Endpoint string
	// Origin is this partner's origin as listed in the gateway's allowed
	// hosts. Sent as the Origin header.
	Origin string
	// Secret is the shared system key.
	Secret string

	MarkerHeader string
	MarkerValue  string
}

// WithDefaults returns a copy of c with empty marker fields filled in.
func (c Config) WithDefaults() Config {
	if c.MarkerHeader == "" {
		c.MarkerHeader = DefaultMarkerHeader
	}
	if c.MarkerValue == "" {
		c.MarkerValue = DefaultMarkerValue
	}
	c.Endpoint = strings.TrimSuffix(c.Endpoint, "/")
	return c
}

// Client performs partner-side calls against a gateway.
type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithClock sets the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a new Client with the given config and options.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}

	c := &Client{
		config:     cfg.WithDefaults(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// File is a streamed gateway response. The caller closes Body.
type File struct {
	Path        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Fetch downloads a file through the gated proxy route, proving the
// shared secret with a timestamped signature over the normalized path.
func (c *Client) Fetch(ctx context.Context, path string) (*File, error) {
	if c.config.Secret == "" {
		return nil, fmt.Errorf("fetch: %w", ErrSecretRequired)
	}
	p, err := resourcePath(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	req, err := c.newRequest(ctx, "/api/proxy/files/"+escapePath(p), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	signed := flowcloud.NewSignedRequest(c.config.Secret, p, c.now())
	req.Header.Set(c.config.MarkerHeader, c.config.MarkerValue)
	req.Header.Set(flowcloud.HeaderDate, signed.Date())
	req.Header.Set(flowcloud.HeaderSignature, signed.Signature)

	return c.doFile(req, p)
}

// Describe requests metadata for a file with the system key and returns
// the access key the gateway issued or reused for it.
func (c *Client) Describe(ctx context.Context, path string) (flowcloud.FileMetadata, error) {
	if c.config.Secret == "" {
		return flowcloud.FileMetadata{}, fmt.Errorf("describe: %w", ErrSecretRequired)
	}
	p, err := resourcePath(path)
	if err != nil {
		return flowcloud.FileMetadata{}, fmt.Errorf("describe: %w", err)
	}

	req, err := c.newRequest(ctx, "/api/files/"+escapePath(p), nil)
	if err != nil {
		return flowcloud.FileMetadata{}, fmt.Errorf("describe: %w", err)
	}
	req.Header.Set(flowcloud.HeaderAccessKey, c.config.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flowcloud.FileMetadata{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return flowcloud.FileMetadata{}, parseServerError(resp.StatusCode, body)
	}

	var meta flowcloud.FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return flowcloud.FileMetadata{}, fmt.Errorf("parse response: %w", err)
	}

	return meta, nil
}

// Download fetches a file through its capability link.
func (c *Client) Download(ctx context.Context, path, key string) (*File, error) {
	if key == "" {
		return nil, fmt.Errorf("download: %w", ErrKeyRequired)
	}
	p, err := resourcePath(path)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	req, err := c.newRequest(ctx, "/files/"+escapePath(p), url.Values{"key": {key}})
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	return c.doFile(req, p)
}

// Link returns the capability link for path and key.
func (c *Client) Link(path, key string) string {
	return c.config.Endpoint + "/files/" + escapePath(strings.Trim(path, "/")) + "?" + url.Values{"key": {key}}.Encode()
}

func (c *Client) newRequest(ctx context.Context, route string, query url.Values) (*http.Request, error) {
	u := c.config.Endpoint + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.config.Origin != "" {
		req.Header.Set("Origin", c.config.Origin)
	}
	return req, nil
}

func (c *Client) doFile(req *http.Request, path string) (*File, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, parseServerError(resp.StatusCode, body)
	}

	return &File{
		Path:        path,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

// resourcePath normalizes path the way the gateway does, so the signed
// resource ID matches the one the gateway verifies.
func resourcePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	return flowcloud.NormalizePath(path)
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
