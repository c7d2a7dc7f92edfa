package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playvault/playvault/backend/go-services/internal/auth"
	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/internal/sessions"
	"github.com/playvault/playvault/backend/go-services/internal/steam"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
	"github.com/playvault/playvault/backend/go-services/pkg/middleware"
)

// RefreshRequest is the body of POST /steam/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg      *config.Config
	authSvc  *auth.Service
	openid   *steam.OpenID
	steamAPI *steam.Client
	store    sessions.Repository
}

func NewAuthHandler(cfg *config.Config, svc *auth.Service, openid *steam.OpenID, steamAPI *steam.Client, store sessions.Repository) *AuthHandler {
	return &AuthHandler{cfg: cfg, authSvc: svc, openid: openid, steamAPI: steamAPI, store: store}
}

// Register routes under /steam. The profile route runs behind the supplied
// auth middleware; login, callback and refresh are anonymous by nature.
func (h *AuthHandler) Register(rg *gin.RouterGroup, authmw gin.HandlerFunc) {
	s := rg.Group("/steam")
	s.GET("/login", h.Login)
	s.GET("/callback", h.Callback)
	s.POST("/refresh", h.Refresh)
	s.GET("/me", authmw, h.Profile)
}

// Login redirects the browser to Steam's OpenID login page
func (h *AuthHandler) Login(c *gin.Context) {
	c.Redirect(http.StatusFound, h.openid.LoginURL())
}

// Callback validates Steam's OpenID assertion, issues credentials and sends
// the browser back to the frontend with the pair in the query string.
func (h *AuthHandler) Callback(c *gin.Context) {
	steamID, err := h.openid.ValidateCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		if errors.Is(err, steam.ErrLoginRejected) {
			fail(c, http.StatusBadRequest, "Invalid Steam login.", "Steam OpenID validation failed.")
			return
		}
		logger.Errorf("steam callback validation error: %v", err)
		fail(c, http.StatusInternalServerError, "An unexpected error occurred during Steam login.", "InternalServerError")
		return
	}

	player, err := h.steamAPI.GetPlayer(c.Request.Context(), steamID)
	if err != nil || player == nil {
		logger.Warnf("steam profile unavailable for SteamID %s: %v", steamID, err)
		fail(c, http.StatusServiceUnavailable, "Unable to load Steam profile. Please try again later.", "SteamProfileUnavailable")
		return
	}

	creds, err := h.authSvc.Login(c.Request.Context(), steamID)
	if err != nil {
		logger.Errorf("credential issuance failed for SteamID %s: %v", steamID, err)
		fail(c, http.StatusInternalServerError, "An unexpected error occurred during Steam login.", "InternalServerError")
		return
	}

	logger.Infof("steam login successful for SteamID %s (version %d)", steamID, creds.TokenVersion)

	q := url.Values{}
	q.Set("accessToken", creds.AccessToken)
	q.Set("refreshToken", creds.RefreshSecret)
	q.Set("steamId", player.SteamID)
	q.Set("personaName", player.PersonaName)
	q.Set("profileUrl", player.ProfileURL)
	c.Redirect(http.StatusFound, h.cfg.Steam.FrontendCallbackURL+"?"+q.Encode())
}

// Refresh exchanges a refresh token for a fresh credential pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Refresh token is required.", "No refresh token provided.")
		return
	}

	creds, err := h.authSvc.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenInvalid), errors.Is(err, auth.ErrRefreshTokenExpired):
			fail(c, http.StatusUnauthorized, "Invalid or expired refresh token.", "InvalidRefreshToken")
		case errors.Is(err, auth.ErrRefreshConflict):
			// a concurrent refresh won; the client may retry once with the
			// credentials that call handed out
			fail(c, http.StatusConflict, "Refresh token was rotated by a concurrent request.", "RefreshConflict")
		case errors.Is(err, auth.ErrStoreInconsistent):
			fail(c, http.StatusServiceUnavailable, "Token refresh incomplete. Please retry.", "StoreInconsistent")
		default:
			logger.Errorf("unexpected error during token refresh: %v", err)
			fail(c, http.StatusInternalServerError, "An unexpected error occurred during token refresh.", "InternalServerError")
		}
		return
	}

	logger.Infof("refresh token rotated successfully for user %s", creds.Identity)
	ok(c, "Token refresh successful.", gin.H{
		"accessToken":  creds.AccessToken,
		"refreshToken": creds.RefreshSecret,
	})
}

// Profile returns the authenticated user's Steam profile
func (h *AuthHandler) Profile(c *gin.Context) {
	identity := c.GetString(middleware.IdentityKey)
	if identity == "" {
		fail(c, http.StatusUnauthorized, "Invalid token.", "Cannot extract userId from token.")
		return
	}

	rec, err := h.store.GetByID(c.Request.Context(), identity)
	if err != nil {
		logger.Errorf("session lookup failed for user %s: %v", identity, err)
		fail(c, http.StatusInternalServerError, "An unexpected error occurred while fetching profile.", "InternalServerError")
		return
	}
	if rec == nil {
		fail(c, http.StatusNotFound, "User not found.", "No user record in database.")
		return
	}

	player, err := h.steamAPI.GetPlayer(c.Request.Context(), identity)
	if err != nil || player == nil {
		logger.Warnf("failed to load Steam profile for user %s: %v", identity, err)
		fail(c, http.StatusServiceUnavailable, "Unable to load Steam profile. Please try again later.", "SteamProfileUnavailable")
		return
	}

	profile := gin.H{
		"steamId":      rec.ID,
		"personaName":  player.PersonaName,
		"avatarUrl":    player.AvatarFull,
		"profileUrl":   player.ProfileURL,
		"createdAtUtc": rec.CreatedAt,
		"personaState": player.PersonaState,
		"isOnline":     player.IsOnline(),
		"countryCode":  player.CountryCode,
	}
	if player.GameID != "" {
		profile["currentGameId"] = player.GameID
		profile["currentGameName"] = player.GameExtraInfo
	}
	if player.LastLogoff > 0 {
		profile["lastSeenAtUtc"] = time.Unix(player.LastLogoff, 0).UTC()
	}
	if player.TimeCreated > 0 {
		profile["steamAccountCreatedAtUtc"] = time.Unix(player.TimeCreated, 0).UTC()
	}

	ok(c, "Profile fetched successfully.", profile)
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"isSuccess": true, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message, errCode string) {
	c.JSON(status, gin.H{"isSuccess": false, "message": message, "error": errCode})
}
