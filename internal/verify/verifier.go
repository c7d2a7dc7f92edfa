// Package verify is the gateway-side fast path: it accepts or rejects a
// bearer token using only the signer and the version cache, never the
// durable session store. Bumping the cached version therefore revokes every
// outstanding token of an identity immediately.
package verify

import (
	"context"
	"errors"

	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
)

var (
	// ErrVersionAbsent means the cache holds no version for the subject.
	// The durable record may well still be valid; rejecting anyway is the
	// fail-closed choice, forcing re-authentication over a slow-path check.
	ErrVersionAbsent = errors.New("no token version in cache")
	// ErrVersionMismatch means the token was minted against a superseded
	// version and has been revoked by a later issuance.
	ErrVersionMismatch = errors.New("token version mismatch")
)

// Verifier validates bearer tokens at the network edge. Stateless; safe for
// concurrent use.
type Verifier struct {
	signer *tokens.Signer
	cache  versioncache.Cache
}

func NewVerifier(signer *tokens.Signer, cache versioncache.Cache) *Verifier {
	return &Verifier{signer: signer, cache: cache}
}

// Verify checks the raw token and returns the authenticated identity. All
// failures must be collapsed to a uniform unauthorized response by the
// caller; the distinct errors exist for diagnostics only.
func (v *Verifier) Verify(ctx context.Context, raw string) (string, error) {
	claims, err := v.signer.Verify(raw)
	if err != nil {
		return "", err
	}

	cached, err := v.cache.Get(ctx, claims.Subject)
	if err != nil {
		// cache trouble reads the same as an evicted entry: reject
		logger.Warnf("version cache unavailable, rejecting token for user %s: %v", claims.Subject, err)
		return "", ErrVersionAbsent
	}
	if cached == "" {
		return "", ErrVersionAbsent
	}
	if cached != claims.Version {
		return "", ErrVersionMismatch
	}
	return claims.Subject, nil
}
