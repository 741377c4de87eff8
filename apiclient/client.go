package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agrisense/geogateway/token"
)

// Client is the shared outbound client for the remote-sensing data API
// (burnt-area detection, planting area, yield prediction). The currently-set
// bearer token is read before every dispatch; with no token set the client
// operates in the guest/anonymous mode the backend understands for public
// layers.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu     sync.RWMutex
	token  string
	origin token.Origin
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithTimeout bounds every data-API request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client (primarily for testing).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a data-API client rooted at baseURL.
func NewClient(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[apiclient.NewClient] baseURL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
		origin:  token.OriginGuest,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// SetToken installs the bearer token subsequent requests carry. An empty
// token switches the client back to guest mode. Implements
// session.TokenSink.
func (c *Client) SetToken(accessToken string, origin token.Origin) {
	c.mu.Lock()
	c.token = accessToken
	if accessToken == "" {
		c.origin = token.OriginGuest
	} else {
		c.origin = origin
	}
	c.mu.Unlock()
}

// Token returns the currently-set bearer token and its origin.
func (c *Client) Token() (string, token.Origin) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.origin
}

// Get issues a GET request carrying the currently-set token and decodes the
// JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	bearer, _ := c.Token()
	return c.do(ctx, http.MethodGet, path, bearer, nil, out)
}

// Post issues a POST request with a JSON body, carrying the currently-set
// token, and decodes the response into out (which may be nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	bearer, _ := c.Token()
	return c.do(ctx, http.MethodPost, path, bearer, body, out)
}

// GetWithBearer issues a GET request carrying the given bearer token instead
// of the shared one, so a request serving one caller can never pick up a
// token set on behalf of another. An empty bearer sends the request
// anonymously.
func (c *Client) GetWithBearer(ctx context.Context, path, bearer string, out any) error {
	return c.do(ctx, http.MethodGet, path, bearer, nil, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[apiclient.do] marshal request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "[apiclient.do] build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[apiclient.do] %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("[apiclient.do] %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[apiclient.do] decode %s %s response", method, path)
	}
	return nil
}
