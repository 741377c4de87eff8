package tiles_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
	"github.com/agrisense/geogateway/tiles"
)

func newTileServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/createSession", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body struct {
			MapType  string `json:"mapType"`
			Language string `json:"language"`
			Region   string `json:"region"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "satellite", body.MapType)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"session":"sess-xyz","expiry":"%d","imageFormat":"png","tileWidth":256,"tileHeight":256}`,
			testNow.Add(2*time.Hour).Unix())
	})
	mux.HandleFunc("GET /v1/2dtiles/{z}/{x}/{y}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sess-xyz", r.URL.Query().Get("session"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL string) *tiles.Client {
	t.Helper()

	client, err := tiles.NewClient(tiles.ClientConfig{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		MapType:  "satellite",
		Language: "en-US",
		Region:   "US",
	})
	require.NoError(t, err)
	return client
}

func TestCreateSession(t *testing.T) {
	server := newTileServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	record, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sess-xyz", record.SessionID)
	require.Equal(t, "png", record.ImageFormat)
	require.Equal(t, 256, record.TileWidth)
	require.Equal(t, testNow.Add(2*time.Hour).Unix(), record.Expiry.Unix())
	require.True(t, record.Valid(testNow))
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.CreateSession(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestFetchTile(t *testing.T) {
	server := newTileServer(t)
	defer server.Close()

	client := newTestClient(t, server.URL)

	data, contentType, err := client.FetchTile(context.Background(), "sess-xyz", 3, 6, 5)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", contentType)
}

func TestFetchTileUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, _, err := client.FetchTile(context.Background(), "sess-xyz", 3, 6, 5)
	require.Error(t, err)
	require.ErrorIs(t, err, gwerrors.ErrUpstreamTile)
}
