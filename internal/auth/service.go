// Package auth implements token issuance and refresh rotation. It owns all
// writes to the session store and the version cache; the gateway-side verify
// package only ever reads the cache.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/playvault/playvault/backend/go-services/internal/sessions"
	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
	"github.com/playvault/playvault/backend/go-services/pkg/metrics"
)

// refresh secrets carry 64 bytes (512 bits) of randomness, base64-encoded
const refreshSecretBytes = 64

// Credentials is the pair handed to a client after login or refresh.
type Credentials struct {
	Identity      string
	AccessToken   string
	RefreshSecret string
	TokenVersion  int
}

// Service mints credentials and rotates refresh secrets.
type Service struct {
	store      sessions.Repository
	cache      versioncache.Cache
	signer     *tokens.Signer
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(store sessions.Repository, cache versioncache.Cache, signer *tokens.Signer, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		signer:     signer,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Login issues credentials for an identity asserted upstream (the Steam
// callback). First login creates the session at version 1; a returning
// identity gets its secret rotated and version bumped, which instantly
// invalidates every previously issued access token.
//
// The write order is fixed: durable store first, then version cache. A
// failed cache write fails the whole call so the client can retry instead of
// holding a token the gateway will reject.
func (s *Service) Login(ctx context.Context, identity string) (*Credentials, error) {
	secret, expiresAt, err := s.newRefreshSecret()
	if err != nil {
		return nil, err
	}

	rec, err := s.store.GetByID(ctx, identity)
	if err != nil {
		return nil, err
	}

	version := 1
	if rec == nil {
		if err := s.store.Create(ctx, &sessions.Session{
			ID:               identity,
			RefreshSecret:    secret,
			RefreshExpiresAt: expiresAt,
			TokenVersion:     version,
			CreatedAt:        s.now().UTC(),
		}); err != nil {
			return nil, err
		}
	} else {
		version = rec.TokenVersion + 1
		err := s.store.RotateSecret(ctx, identity, rec.RefreshSecret, sessions.Rotation{
			NewSecret:    secret,
			NewExpiresAt: expiresAt,
			NewVersion:   version,
		})
		if err != nil {
			// a refresh racing this login already rotated; surface the
			// conflict rather than overwrite its version bump
			return nil, err
		}
	}

	if err := s.writeVersion(ctx, identity, version); err != nil {
		metrics.IssuanceFailed.WithLabelValues("login").Inc()
		return nil, err
	}

	token, err := s.signer.Sign(identity, version)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues("login").Inc()
	return &Credentials{
		Identity:      identity,
		AccessToken:   token,
		RefreshSecret: secret,
		TokenVersion:  version,
	}, nil
}

// Rotate validates a presented refresh secret and replaces it, bumping the
// token version. The store update is conditional on the presented secret
// still being current, so of two concurrent calls exactly one wins; the
// other gets ErrRefreshConflict and the version advances exactly once.
func (s *Service) Rotate(ctx context.Context, presentedSecret string) (*Credentials, error) {
	rec, err := s.store.GetByRefreshSecret(ctx, presentedSecret)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		metrics.RefreshRejected.WithLabelValues("invalid").Inc()
		return nil, ErrRefreshTokenInvalid
	}
	if !rec.RefreshExpiresAt.After(s.now().UTC()) {
		metrics.RefreshRejected.WithLabelValues("expired").Inc()
		return nil, ErrRefreshTokenExpired
	}

	secret, expiresAt, err := s.newRefreshSecret()
	if err != nil {
		return nil, err
	}
	version := rec.TokenVersion + 1

	err = s.store.RotateSecret(ctx, rec.ID, presentedSecret, sessions.Rotation{
		NewSecret:    secret,
		NewExpiresAt: expiresAt,
		NewVersion:   version,
	})
	if err != nil {
		if err == sessions.ErrRefreshConflict {
			metrics.RefreshRejected.WithLabelValues("conflict").Inc()
			logger.Warnf("concurrent refresh lost the rotation race for user %s", rec.ID)
		}
		return nil, err
	}

	if err := s.writeVersion(ctx, rec.ID, version); err != nil {
		// the durable record already advanced; only a retry can bring the
		// cache back in line, so report that explicitly
		metrics.IssuanceFailed.WithLabelValues("refresh").Inc()
		logger.Errorf("version cache write failed after rotation for user %s: %v", rec.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrStoreInconsistent, err)
	}

	token, err := s.signer.Sign(rec.ID, version)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues("refresh").Inc()
	return &Credentials{
		Identity:      rec.ID,
		AccessToken:   token,
		RefreshSecret: secret,
		TokenVersion:  version,
	}, nil
}

// IssueForVersion signs a token carrying an already-committed version. It
// touches neither store nor cache.
func (s *Service) IssueForVersion(identity string, version int) (string, error) {
	return s.signer.Sign(identity, version)
}

func (s *Service) writeVersion(ctx context.Context, identity string, version int) error {
	// cache TTL tracks the refresh lifetime: once the secret can no longer
	// be exchanged, the cache entry has nothing left to vouch for
	return s.cache.Set(ctx, identity, version, s.refreshTTL)
}

func (s *Service) newRefreshSecret() (string, time.Time, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), s.now().UTC().Add(s.refreshTTL), nil
}
