package sessions

import (
	"errors"
	"time"
)

// ErrRefreshConflict is returned by RotateSecret when the stored refresh
// secret no longer matches the one being rotated away. Exactly one of two
// concurrent rotations on the same secret observes it.
var ErrRefreshConflict = errors.New("refresh secret already rotated")

// Session is the durable auth record, one per identity. The refresh secret
// is single-use: every rotation replaces secret, expiry and version in
// place, orphaning the previous secret.
type Session struct {
	ID               string    `bson:"_id" json:"id"`
	RefreshSecret    string    `bson:"refreshSecret" json:"refreshSecret"`
	RefreshExpiresAt time.Time `bson:"refreshExpiresAt" json:"refreshExpiresAt"`
	TokenVersion     int       `bson:"tokenVersion" json:"tokenVersion"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
}
