package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/verify"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
)

// fakeVerifier implements IdentityVerifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (string, error) {
	if raw == "goodtoken" {
		return "user-1", nil
	}
	return "", fmt.Errorf("invalid token")
}

func protectedRouter(ver IdentityVerifier) *gin.Engine {
	g := gin.New()
	g.Use(AuthMiddleware(ver))
	g.GET("/p", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": c.GetString(IdentityKey)})
	})
	g.GET("/hubs/friends", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": c.GetString(IdentityKey)})
	})
	return g
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	g := protectedRouter(&fakeVerifier{})
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	g := protectedRouter(&fakeVerifier{})
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "user-1", body["identity"])
}

func TestAuthMiddleware_QueryTokenOnlyOnHubPaths(t *testing.T) {
	g := protectedRouter(&fakeVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/hubs/friends?access_token=goodtoken", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// a plain path must not accept query tokens
	req = httptest.NewRequest(http.MethodGet, "/p?access_token=goodtoken", nil)
	w = httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// The 401 body is identical regardless of which check failed.
func TestAuthMiddleware_UniformRejectionBody(t *testing.T) {
	signer := tokens.NewSigner(config.JWTConfig{
		Secret:         "middleware-test-secret-32-bytes-xxxxxx",
		Issuer:         "playvault-auth",
		Audience:       "playvault-api",
		AccessTokenTTL: 10 * time.Minute,
	})
	cache := versioncache.NewMemoryCache()
	g := protectedRouter(verify.NewVerifier(signer, cache))

	_ = cache.Set(context.Background(), "user-1", 2, time.Hour)
	staleToken, _ := signer.Sign("user-1", 1)    // version mismatch
	orphanToken, _ := signer.Sign("nobody", 1)   // version absent

	var bodies []string
	for _, raw := range []string{"garbage", staleToken, orphanToken} {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		w := httptest.NewRecorder()
		g.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		bodies = append(bodies, w.Body.String())
	}
	require.Equal(t, bodies[0], bodies[1])
	require.Equal(t, bodies[1], bodies[2])

	// and a matching token passes through the same stack
	goodToken, _ := signer.Sign("user-1", 2)
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
