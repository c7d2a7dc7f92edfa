package auth

import (
	"errors"

	"github.com/playvault/playvault/backend/go-services/internal/sessions"
)

var (
	// ErrRefreshTokenInvalid is returned when no session holds the presented
	// refresh secret. Clients must re-authenticate; no retry.
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	// ErrRefreshTokenExpired is returned when the stored refresh secret has
	// passed its expiry. Clients must re-authenticate; no retry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshConflict is returned to the loser of two concurrent
	// rotations on the same secret. Clients may retry once with the secret
	// the winning rotation handed out, or re-authenticate.
	ErrRefreshConflict = sessions.ErrRefreshConflict
	// ErrStoreInconsistent is returned when the durable record advanced but
	// the version-cache write did not confirm. The caller must retry so the
	// cache resynchronizes; until then every token of that identity is
	// rejected fail-closed.
	ErrStoreInconsistent = errors.New("session store and version cache out of sync")
)
