package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
)

// Player mirrors the fields of a GetPlayerSummaries entry this system reads.
type Player struct {
	SteamID       string `json:"steamid"`
	PersonaName   string `json:"personaname"`
	ProfileURL    string `json:"profileurl"`
	AvatarFull    string `json:"avatarfull"`
	PersonaState  int    `json:"personastate"`
	GameID        string `json:"gameid,omitempty"`
	GameExtraInfo string `json:"gameextrainfo,omitempty"`
	LastLogoff    int64  `json:"lastlogoff,omitempty"`
	TimeCreated   int64  `json:"timecreated,omitempty"`
	CountryCode   string `json:"loccountrycode,omitempty"`
}

// IsOnline reports whether the persona state counts as active (anything but
// offline: online, busy, away, snooze, looking to trade, looking to play).
func (p *Player) IsOnline() bool {
	return p.PersonaState >= 1 && p.PersonaState <= 6
}

type playerEnvelope struct {
	Response struct {
		Players []Player `json:"players"`
	} `json:"response"`
}

// Client reads player summaries from the Steam Web API, caching responses
// in Redis for a short TTL so bursts of profile reads do not hammer Valve.
// A nil Redis client disables caching.
type Client struct {
	http     *http.Client
	cache    *redis.Client
	apiKey   string
	baseURL  string
	cacheTTL time.Duration
}

func NewClient(cfg config.SteamConfig, cache *redis.Client) *Client {
	return &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		cacheTTL: cfg.UserCacheTTL,
	}
}

func playerCacheKey(steamID string) string { return "steam:user:" + steamID }

// GetPlayer returns the player summary for the SteamID, or nil when Steam
// reports no such player.
func (c *Client) GetPlayer(ctx context.Context, steamID string) (*Player, error) {
	if steamID == "" {
		return nil, fmt.Errorf("steamID must not be empty")
	}

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, playerCacheKey(steamID)).Bytes(); err == nil {
			var p Player
			if err := json.Unmarshal(cached, &p); err == nil {
				return &p, nil
			}
			logger.Warnf("discarding undecodable cached player summary for %s", steamID)
		}
	}

	url := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?key=%s&steamids=%s", c.baseURL, c.apiKey, steamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steam player summaries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam player summaries: status %d", resp.StatusCode)
	}

	var envelope playerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("steam player summaries: %w", err)
	}
	if len(envelope.Response.Players) == 0 {
		logger.Warnf("steam returned no player for SteamID %s", steamID)
		return nil, nil
	}
	player := envelope.Response.Players[0]

	if c.cache != nil {
		if b, err := json.Marshal(&player); err == nil {
			if err := c.cache.Set(ctx, playerCacheKey(steamID), b, c.cacheTTL).Err(); err != nil {
				logger.Warnf("failed to cache player summary for %s: %v", steamID, err)
			}
		}
	}
	return &player, nil
}
