package tiles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
)

// ClientConfig identifies the external tile service and the session
// parameters sent on creation.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	MapType  string
	Language string
	Region   string
}

// Client talks to the external tile-serving API: one endpoint to create a
// session, one to fetch raster tiles with it.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithClientTimeout bounds every call to the tile service.
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithClientLogger sets the structured logger.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a tile service client.
func NewClient(cfg ClientConfig, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("[tiles.NewClient] BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// createSessionRequest is the creation payload; field names follow the tile
// service's wire format.
type createSessionRequest struct {
	MapType  string `json:"mapType"`
	Language string `json:"language"`
	Region   string `json:"region"`
}

// createSessionResponse mirrors the service response. Expiry arrives as a
// string of Unix seconds.
type createSessionResponse struct {
	Session     string `json:"session"`
	Expiry      string `json:"expiry"`
	ImageFormat string `json:"imageFormat"`
	TileWidth   int    `json:"tileWidth"`
	TileHeight  int    `json:"tileHeight"`
}

// CreateSession requests a new session from the tile service.
func (c *Client) CreateSession(ctx context.Context) (*SessionRecord, error) {
	payload, err := json.Marshal(createSessionRequest{
		MapType:  c.cfg.MapType,
		Language: c.cfg.Language,
		Region:   c.cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[tiles.CreateSession] marshal request")
	}

	url := fmt.Sprintf("%s/v1/createSession?key=%s", c.cfg.BaseURL, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "[tiles.CreateSession] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[tiles.CreateSession]")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[tiles.CreateSession] unexpected status %d", resp.StatusCode)
	}

	var wire createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, errors.Wrap(err, "[tiles.CreateSession] decode response")
	}
	if wire.Session == "" {
		return nil, errors.New("[tiles.CreateSession] response carries no session")
	}

	record := &SessionRecord{
		SessionID:   wire.Session,
		ImageFormat: wire.ImageFormat,
		TileWidth:   wire.TileWidth,
		TileHeight:  wire.TileHeight,
	}
	if seconds, err := strconv.ParseInt(wire.Expiry, 10, 64); err == nil {
		record.Expiry = time.Unix(seconds, 0)
	}

	c.log.Debug().Time("expiry", record.Expiry).Msg("tile session created")
	return record, nil
}

// FetchTile retrieves the raw tile bytes for z/x/y using the given session.
// Upstream failures yield ErrUpstreamTile; they never invalidate the session.
func (c *Client) FetchTile(ctx context.Context, sessionID string, z, x, y int) ([]byte, string, error) {
	url := fmt.Sprintf("%s/v1/2dtiles/%d/%d/%d?session=%s&key=%s", c.cfg.BaseURL, z, x, y, sessionID, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "[tiles.FetchTile] build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(gwerrors.ErrUpstreamTile, "[tiles.FetchTile] %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Wrapf(gwerrors.ErrUpstreamTile, "[tiles.FetchTile] unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrapf(gwerrors.ErrUpstreamTile, "[tiles.FetchTile] read body: %v", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
