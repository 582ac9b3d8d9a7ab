package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the platform API root.
const DefaultBaseURL = "https://bigml.io/andromeda"

// Fetcher retrieves resource documents by id.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*Document, error)
}

// APIError is returned when the platform answers with a non 200 status.
type APIError struct {
	ID         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d: %s", e.ID, e.StatusCode, e.Body)
}

// Client fetches resource documents from the platform API.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new API client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, username, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the document of the resource with the given id.
func (c *Client) Fetch(ctx context.Context, id string) (*Document, error) {
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", id, err)
	}
	if c.username != "" || c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s:%s", c.username, c.apiKey))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	c.logger.Debug("fetched resource",
		zap.String("id", id),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{ID: id, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return ParseBytes(body)
}

// ErrNoFetcher is returned when an id is given but no Fetcher is available.
var ErrNoFetcher = errors.New("no fetcher configured for remote resources")

// Load obtains a document from source, which is a resource id, a local file
// path or a raw JSON document.
func Load(ctx context.Context, fetcher Fetcher, source string) (*Document, error) {
	trimmed := strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return ParseBytes([]byte(trimmed))
	case IsID(trimmed):
		if fetcher == nil {
			return nil, fmt.Errorf("loading %s: %w", trimmed, ErrNoFetcher)
		}
		return fetcher.Fetch(ctx, trimmed)
	default:
		return ReadFile(source)
	}
}
