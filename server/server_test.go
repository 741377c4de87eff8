package server_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/geogateway/apiclient"
	"github.com/agrisense/geogateway/auth"
	"github.com/agrisense/geogateway/internal/config"
	"github.com/agrisense/geogateway/server"
	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/tiles"
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
	"github.com/agrisense/geogateway/users/repomemory"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type stubTileService struct {
	createCalls int32
	fetchCalls  int32
	fetchErr    error
}

func (s *stubTileService) CreateSession(ctx context.Context) (*tiles.SessionRecord, error) {
	atomic.AddInt32(&s.createCalls, 1)
	return &tiles.SessionRecord{
		SessionID:   "sess-test",
		Expiry:      testNow.Add(2 * time.Hour),
		ImageFormat: "png",
		TileWidth:   256,
		TileHeight:  256,
	}, nil
}

func (s *stubTileService) FetchTile(ctx context.Context, sessionID string, z, x, y int) ([]byte, string, error) {
	atomic.AddInt32(&s.fetchCalls, 1)
	if s.fetchErr != nil {
		return nil, "", s.fetchErr
	}
	return []byte("tile-bytes"), "image/png", nil
}

type fixture struct {
	server   *server.Server
	repo     users.UserRepo
	tileSvc  *stubTileService
	dataAPI  *apiclient.Client
	sessions *session.Manager

	// Authorization header of the last request the stub data API saw.
	lastDataAuth *string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repomemory.NewUserRepo()
	seedUsers(t, repo)

	issuer, err := token.NewIssuer(
		token.NewHMACSigner("test-signing-secret"),
		"geogateway-test",
		"agrisense-dashboard",
		token.WithNowFunc(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	authService, err := auth.NewService(repo, issuer, auth.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)

	var dataMu sync.Mutex
	var lastDataAuth string
	dataServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		dataMu.Lock()
		lastDataAuth = auth
		dataMu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		raw, _ := json.Marshal(map[string]any{"ok": true, "auth": auth})
		_, _ = w.Write(raw)
	}))
	t.Cleanup(dataServer.Close)

	dataAPI, err := apiclient.NewClient(dataServer.URL)
	require.NoError(t, err)

	sessions, err := session.NewManager(authService, dataAPI,
		session.WithNowFunc(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	tileSvc := &stubTileService{}
	tileCache, err := tiles.NewCache(tileSvc, tiles.NewMemoryStore(),
		tiles.WithCacheNowFunc(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	cfg := &config.Config{Env: "TEST", AllowedOrigins: "*"}

	srv, err := server.New(cfg, zerolog.Nop(), server.Deps{
		Auth:     authService,
		Sessions: sessions,
		Issuer:   issuer,
		Users:    repo,
		Tiles:    tileCache,
		DataAPI:  dataAPI,
	})
	require.NoError(t, err)

	return &fixture{
		server:       srv,
		repo:         repo,
		tileSvc:      tileSvc,
		dataAPI:      dataAPI,
		sessions:     sessions,
		lastDataAuth: &lastDataAuth,
	}
}

func seedUsers(t *testing.T, repo users.UserRepo) {
	t.Helper()

	adminHash, err := users.HashPassword("AdminPass1")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(&users.User{
		ID:           "admin-id",
		Email:        "admin@agrisense.io",
		Username:     "admin",
		PasswordHash: adminHash,
		Roles:        []users.RoleType{users.RoleAdmin},
		Verified:     true,
	}))

	analystHash, err := users.HashPassword("AnalystPass1")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(&users.User{
		ID:           "analyst-id",
		Email:        "analyst@agrisense.io",
		Username:     "analyst",
		PasswordHash: analystHash,
		FirstName:    "Ana",
		Roles:        []users.RoleType{users.RoleAnalyst},
		Verified:     true,
	}))
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) (string, string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.AccessToken, resp.RefreshToken
}

func bearer(access, refresh string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + access}
	if refresh != "" {
		headers["X-Refresh-Token"] = refresh
	}
	return headers
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newFixture(t)

	access, _ := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	claims, err := token.Decode(access)
	require.NoError(t, err)
	require.Equal(t, "analyst-id", claims.Subject)
	require.Equal(t, token.OriginLogin, claims.Origin)
	require.Contains(t, claims.Roles, "analyst")

	propagated, origin := f.dataAPI.Token()
	require.Equal(t, access, propagated)
	require.Equal(t, token.OriginLogin, origin)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "analyst@agrisense.io",
		"password": "WrongPass1",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestLoginIssuesPair(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login/guest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	claims, err := token.Decode(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, token.OriginGuest, claims.Origin)
	require.Contains(t, claims.Roles, "guest")
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)

	_, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := token.Decode(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "analyst-id", claims.Subject)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)

	access, _ := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": access,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileReturnsStoredUser(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodGet, "/me", nil, bearer(access, refresh))
	require.Equal(t, http.StatusOK, rec.Code)

	var user users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "analyst@agrisense.io", user.Email)
	require.Equal(t, "Ana", user.FirstName)
}

func TestProfileUpdateMergesFields(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodPut, "/me", map[string]string{
		"first_name": "Anabel",
	}, bearer(access, refresh))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.repo.GetByID("analyst-id")
	require.NoError(t, err)
	require.Equal(t, "Anabel", stored.FirstName)
	require.Equal(t, "analyst@agrisense.io", stored.Email) // untouched
}

func TestGuestCannotAccessProfile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login/guest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	me := f.do(t, http.MethodGet, "/me", nil, bearer(resp.AccessToken, resp.RefreshToken))
	require.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestLogoutClearsLoggedInFlag(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	stored, err := f.repo.GetByEmail("analyst@agrisense.io")
	require.NoError(t, err)
	require.True(t, stored.LoggedIn)

	rec := f.do(t, http.MethodPost, "/auth/logout", nil, bearer(access, refresh))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err = f.repo.GetByEmail("analyst@agrisense.io")
	require.NoError(t, err)
	require.False(t, stored.LoggedIn)

	propagated, origin := f.dataAPI.Token()
	require.Empty(t, propagated)
	require.Equal(t, token.OriginGuest, origin)
}

func TestTileProxyServesGuests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/tiles/12/2048/1536", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, []byte("tile-bytes"), rec.Body.Bytes())
	require.Equal(t, int32(1), atomic.LoadInt32(&f.tileSvc.createCalls))
}

func TestTileProxySharesSessionAcrossRequests(t *testing.T) {
	f := newFixture(t)

	for range 3 {
		rec := f.do(t, http.MethodGet, "/tiles/12/2048/1536", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&f.tileSvc.createCalls))
	require.Equal(t, int32(3), atomic.LoadInt32(&f.tileSvc.fetchCalls))
}

func TestTileProxyRejectsBadCoordinates(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/tiles/12/abc/1536", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionMiddlewareRefreshesStalePair(t *testing.T) {
	f := newFixture(t)

	staleIssuer, err := token.NewIssuer(
		token.NewHMACSigner("test-signing-secret"),
		"geogateway-test",
		"agrisense-dashboard",
		token.WithNowFunc(func() time.Time { return testNow.Add(-2 * time.Hour) }),
	)
	require.NoError(t, err)

	analyst, err := f.repo.GetByID("analyst-id")
	require.NoError(t, err)

	// Access token issued two hours ago is expired; refresh token is not.
	stale, err := staleIssuer.IssuePair(analyst, token.OriginLogin)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/me", nil, bearer(stale.AccessToken, stale.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code)

	renewedAccess := rec.Header().Get("X-Access-Token")
	renewedRefresh := rec.Header().Get("X-Refresh-Token")
	require.NotEmpty(t, renewedAccess)
	require.NotEmpty(t, renewedRefresh)
	require.NotEqual(t, stale.AccessToken, renewedAccess)

	claims, err := token.Decode(renewedAccess)
	require.NoError(t, err)
	require.Equal(t, "analyst-id", claims.Subject)
}

func TestSessionMiddlewareRejectsFullyExpiredPair(t *testing.T) {
	f := newFixture(t)

	deadIssuer, err := token.NewIssuer(
		token.NewHMACSigner("test-signing-secret"),
		"geogateway-test",
		"agrisense-dashboard",
		token.WithNowFunc(func() time.Time { return testNow.Add(-2000 * time.Hour) }),
	)
	require.NoError(t, err)

	analyst, err := f.repo.GetByID("analyst-id")
	require.NoError(t, err)

	dead, err := deadIssuer.IssuePair(analyst, token.OriginLogin)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/me", nil, bearer(dead.AccessToken, dead.RefreshToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodGet, "/admin/users", nil, bearer(access, refresh))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUserLifecycle(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "admin@agrisense.io", "AdminPass1")
	headers := bearer(access, refresh)

	created := f.do(t, http.MethodPost, "/admin/users", map[string]any{
		"email":    "viewer@agrisense.io",
		"username": "viewer",
		"password": "ViewerPass1",
		"roles":    []string{"viewer"},
	}, headers)
	require.Equal(t, http.StatusCreated, created.Code)

	list := f.do(t, http.MethodGet, "/admin/users", nil, headers)
	require.Equal(t, http.StatusOK, list.Code)
	var page []*users.User
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	require.Len(t, page, 3)

	blocked := f.do(t, http.MethodPut, "/admin/users/viewer@agrisense.io/blocked", map[string]any{
		"blocked": true,
	}, headers)
	require.Equal(t, http.StatusOK, blocked.Code)

	login := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "viewer@agrisense.io",
		"password": "ViewerPass1",
	}, nil)
	require.Equal(t, http.StatusForbidden, login.Code)

	deleted := f.do(t, http.MethodDelete, "/admin/users/viewer@agrisense.io", nil, headers)
	require.Equal(t, http.StatusOK, deleted.Code)

	missing := f.do(t, http.MethodDelete, "/admin/users/viewer@agrisense.io", nil, headers)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListUsersClampsNegativeOffset(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "admin@agrisense.io", "AdminPass1")

	rec := f.do(t, http.MethodGet, "/admin/users?offset=-1", nil, bearer(access, refresh))
	require.Equal(t, http.StatusOK, rec.Code)

	var page []*users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 2)
}

func TestCreateUserRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "admin@agrisense.io", "AdminPass1")

	rec := f.do(t, http.MethodPost, "/admin/users", map[string]any{
		"email":    "weak@agrisense.io",
		"username": "weak",
		"password": "short",
		"roles":    []string{"viewer"},
	}, bearer(access, refresh))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type proxyEcho struct {
	OK   bool   `json:"ok"`
	Auth string `json:"auth"`
}

func TestDataProxyAttachesBearer(t *testing.T) {
	f := newFixture(t)

	access, refresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")

	rec := f.do(t, http.MethodGet, "/api/yield/summary?year=2026", nil, bearer(access, refresh))
	require.Equal(t, http.StatusOK, rec.Code)

	var echo proxyEcho
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echo))
	require.True(t, echo.OK)
	require.Equal(t, "Bearer "+access, echo.Auth)
	require.Equal(t, "Bearer "+access, *f.lastDataAuth)
}

func TestDataProxyGuestSendsNoBearer(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/burnt-area/public", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var echo proxyEcho
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echo))
	require.Empty(t, echo.Auth)
}

func TestDataProxyIsolatesConcurrentCallers(t *testing.T) {
	f := newFixture(t)

	analystAccess, analystRefresh := f.login(t, "analyst@agrisense.io", "AnalystPass1")
	adminAccess, adminRefresh := f.login(t, "admin@agrisense.io", "AdminPass1")

	callers := []struct {
		headers map[string]string
		want    string
	}{
		{bearer(analystAccess, analystRefresh), "Bearer " + analystAccess},
		{bearer(adminAccess, adminRefresh), "Bearer " + adminAccess},
		{nil, ""},
	}

	const rounds = 20
	var wg sync.WaitGroup
	got := make([][rounds]string, len(callers))

	for ci := range callers {
		wg.Add(1)
		go func(ci int) {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				rec := f.do(t, http.MethodGet, "/api/yield/summary", nil, callers[ci].headers)
				var echo proxyEcho
				if rec.Code == http.StatusOK {
					_ = json.Unmarshal(rec.Body.Bytes(), &echo)
					got[ci][round] = echo.Auth
				} else {
					got[ci][round] = "status " + rec.Result().Status
				}
			}
		}(ci)
	}
	wg.Wait()

	// Every upstream request must carry its own caller's token, never a
	// token another interleaved request propagated to the shared client.
	for ci, caller := range callers {
		for round := 0; round < rounds; round++ {
			require.Equal(t, caller.want, got[ci][round])
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://dashboard.agrisense.io")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
