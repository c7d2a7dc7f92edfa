package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playvault/playvault/backend/go-services/internal/auth"
	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/internal/sessions"
	"github.com/playvault/playvault/backend/go-services/internal/steam"
	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/verify"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
	"github.com/playvault/playvault/backend/go-services/pkg/middleware"
)

const testSteamID = "76561198000000001"

type fixture struct {
	router *gin.Engine
	svc    *auth.Service
	repo   *sessions.MemoryRepository
	cache  *versioncache.MemoryCache
}

// newFixture wires the full auth stack against fake Steam endpoints.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	openidSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ns:http://specs.openid.net/auth/2.0\nis_valid:true\n")
	}))
	t.Cleanup(openidSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response":{"players":[{"steamid":"%s","personaname":"gabe","profileurl":"https://steamcommunity.com/id/gabe","personastate":1}]}}`, testSteamID)
	}))
	t.Cleanup(apiSrv.Close)

	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		Secret:          "handlers-test-secret-32-bytes-xxxxxxxx",
		Issuer:          "playvault-auth",
		Audience:        "playvault-api",
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
	cfg.Steam = config.SteamConfig{
		APIKey:              "k",
		BaseURL:             apiSrv.URL,
		OpenIDEndpoint:      openidSrv.URL,
		PublicBackendURL:    "https://api.example.com",
		FrontendCallbackURL: "https://app.example.com/auth/callback",
		UserCacheTTL:        30 * time.Second,
	}

	signer := tokens.NewSigner(cfg.JWT)
	repo := sessions.NewMemoryRepository()
	cache := versioncache.NewMemoryCache()
	svc := auth.NewService(repo, cache, signer, cfg.JWT.RefreshTokenTTL)
	ver := verify.NewVerifier(signer, cache)

	h := NewAuthHandler(cfg, svc, steam.NewOpenID(cfg.Steam), steam.NewClient(cfg.Steam, nil), repo)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/"), middleware.AuthMiddleware(ver))

	return &fixture{router: r, svc: svc, repo: repo, cache: cache}
}

func TestLogin_RedirectsToSteam(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/steam/login", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.Contains(t, loc, "openid.mode=checkid_setup")
}

func TestCallback_IssuesCredentialsAndRedirects(t *testing.T) {
	f := newFixture(t)

	q := url.Values{}
	q.Set("openid.mode", "id_res")
	q.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/"+testSteamID)
	req := httptest.NewRequest(http.MethodGet, "/steam/callback?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("accessToken"))
	assert.NotEmpty(t, loc.Query().Get("refreshToken"))
	assert.Equal(t, testSteamID, loc.Query().Get("steamId"))

	rec, _ := f.repo.GetByID(req.Context(), testSteamID)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TokenVersion)
}

func TestCallback_InvalidAssertion(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/steam/callback?openid.mode=cancel", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["isSuccess"])
}

func TestRefresh_RotatesCredentials(t *testing.T) {
	f := newFixture(t)
	creds, err := f.svc.Login(context.Background(), testSteamID)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"refreshToken":%q}`, creds.RefreshSecret)
	req := httptest.NewRequest(http.MethodPost, "/steam/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		IsSuccess bool `json:"isSuccess"`
		Data      struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsSuccess)
	assert.NotEmpty(t, resp.Data.AccessToken)
	assert.NotEqual(t, creds.RefreshSecret, resp.Data.RefreshToken)

	// old secret is now single-use spent
	req = httptest.NewRequest(http.MethodPost, "/steam/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/steam/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfile_RequiresValidToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/steam/me", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	creds, err := f.svc.Login(context.Background(), testSteamID)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/steam/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		IsSuccess bool `json:"isSuccess"`
		Data      struct {
			SteamID     string `json:"steamId"`
			PersonaName string `json:"personaName"`
			IsOnline    bool   `json:"isOnline"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testSteamID, resp.Data.SteamID)
	assert.Equal(t, "gabe", resp.Data.PersonaName)
	assert.True(t, resp.Data.IsOnline)
}

// A refresh revokes the previous access token at the edge.
func TestRefresh_RevokesOldAccessToken(t *testing.T) {
	f := newFixture(t)
	creds, err := f.svc.Login(context.Background(), testSteamID)
	require.NoError(t, err)

	// old token works
	req := httptest.NewRequest(http.MethodGet, "/steam/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	rotated, err := f.svc.Rotate(context.Background(), creds.RefreshSecret)
	require.NoError(t, err)

	// old token is now rejected, new one accepted
	req = httptest.NewRequest(http.MethodGet, "/steam/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/steam/me", nil)
	req.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
