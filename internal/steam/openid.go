// Package steam talks to the two Valve endpoints this system depends on:
// the OpenID 2.0 login flow that asserts a SteamID, and the Web API used to
// read public player summaries.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
)

const openIDEndpoint = "https://steamcommunity.com/openid/login"

// ErrLoginRejected means Steam did not confirm the callback assertion.
var ErrLoginRejected = errors.New("steam openid validation failed")

// OpenID implements Steam's OpenID 2.0 checkid_setup / check_authentication
// exchange. Steam only supports OpenID 2.0, not OIDC, so this is a plain
// form POST round trip rather than a JWKS verification.
type OpenID struct {
	client           *http.Client
	endpoint         string
	publicBackendURL string
}

func NewOpenID(cfg config.SteamConfig) *OpenID {
	endpoint := cfg.OpenIDEndpoint
	if endpoint == "" {
		endpoint = openIDEndpoint
	}
	return &OpenID{
		client:           &http.Client{Timeout: 10 * time.Second},
		endpoint:         endpoint,
		publicBackendURL: strings.TrimRight(cfg.PublicBackendURL, "/"),
	}
}

// LoginURL builds the redirect that sends the browser to Steam's login page.
func (o *OpenID) LoginURL() string {
	returnTo := o.publicBackendURL + "/steam/callback"
	realm := o.publicBackendURL
	if u, err := url.Parse(o.publicBackendURL); err == nil {
		realm = u.Scheme + "://" + u.Host
	}

	q := url.Values{}
	q.Set("openid.ns", "http://specs.openid.net/auth/2.0")
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", returnTo)
	q.Set("openid.realm", realm)
	q.Set("openid.claimed_id", "http://specs.openid.net/auth/2.0/identifier_select")
	q.Set("openid.identity", "http://specs.openid.net/auth/2.0/identifier_select")
	return o.endpoint + "?" + q.Encode()
}

// ValidateCallback replays the callback parameters to Steam with
// check_authentication and extracts the SteamID from the claimed id.
func (o *OpenID) ValidateCallback(ctx context.Context, query url.Values) (string, error) {
	if query.Get("openid.mode") != "id_res" {
		logger.Warnf("steam callback with invalid openid.mode=%q", query.Get("openid.mode"))
		return "", ErrLoginRejected
	}

	form := url.Values{}
	for k := range query {
		if !strings.HasPrefix(strings.ToLower(k), "openid.") {
			continue
		}
		if strings.EqualFold(k, "openid.mode") {
			form.Set("openid.mode", "check_authentication")
		} else {
			form.Set(k, query.Get(k))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("steam openid check: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("steam openid check: %w", err)
	}
	if !strings.Contains(strings.ToLower(string(body)), "is_valid:true") {
		logger.Warnf("steam openid check_authentication rejected the assertion")
		return "", ErrLoginRejected
	}

	claimedID := query.Get("openid.claimed_id")
	if claimedID == "" {
		return "", ErrLoginRejected
	}
	segments := strings.Split(strings.TrimRight(claimedID, "/"), "/")
	steamID := segments[len(segments)-1]
	if steamID == "" {
		logger.Warnf("failed to parse SteamID from claimed_id %q", claimedID)
		return "", ErrLoginRejected
	}
	return steamID, nil
}
