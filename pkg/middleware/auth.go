package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/verify"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
	"github.com/playvault/playvault/backend/go-services/pkg/metrics"
)

// IdentityKey is the gin context key under which the authenticated identity
// is stored for downstream handlers.
const IdentityKey = "identity"

// IdentityVerifier is the minimal interface the middleware depends on
type IdentityVerifier interface {
	Verify(ctx context.Context, raw string) (string, error)
}

// AuthMiddleware returns a Gin middleware that verifies bearer tokens using
// the provided verifier. Every failure collapses to the same 401 body; the
// specific reason stays in logs and metrics so callers cannot distinguish
// expired from revoked from tampered.
func AuthMiddleware(ver IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			metrics.VerifyRejected.WithLabelValues("missing").Inc()
			unauthorized(c)
			return
		}

		identity, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			reason := rejectReason(err)
			metrics.VerifyRejected.WithLabelValues(reason).Inc()
			logger.Debugf("rejected bearer token (%s): %v", reason, err)
			unauthorized(c)
			return
		}

		metrics.VerifyAccepted.Inc()
		c.Set(IdentityKey, identity)
		// keyed rate limiting reads the subject from the claims map
		c.Set("claims", map[string]interface{}{"sub": identity})
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	// browser WebSocket clients cannot set headers; hub paths may carry the
	// token as a query parameter instead
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/hubs") || strings.HasPrefix(path, "/friends-api/hubs") {
		return c.Query("access_token")
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"isSuccess": false,
		"message":   "Invalid or expired token.",
		"error":     "Unauthorized",
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, tokens.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, tokens.ErrExpiredToken):
		return "expired"
	case errors.Is(err, tokens.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, tokens.ErrClaimMissing):
		return "claim_missing"
	case errors.Is(err, verify.ErrVersionAbsent):
		return "version_absent"
	case errors.Is(err, verify.ErrVersionMismatch):
		return "version_mismatch"
	default:
		return "invalid"
	}
}
