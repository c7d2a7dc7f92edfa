package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/playvault/playvault/backend/go-services/internal/config"
)

// Leeway applied to time-based claim checks so slightly skewed clocks
// between issuer and gateway do not reject fresh tokens.
const clockSkew = 30 * time.Second

var (
	// ErrMalformedToken indicates the raw string is not a decodable JWT.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken indicates the token lifetime has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrSignatureInvalid indicates the signature does not match the key.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrClaimMissing indicates a required claim (sub or ver) is absent.
	ErrClaimMissing = errors.New("required claim missing")
)

// Claims is the verified claim set of an access token.
type Claims struct {
	Subject   string
	Version   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer signs and verifies access tokens. It performs no I/O; version
// enforcement against the cache happens in the verify package.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewSigner creates a Signer from the JWT section of the configuration.
func NewSigner(cfg config.JWTConfig) *Signer {
	return &Signer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		now:      time.Now,
	}
}

// Sign creates a signed access token for the subject carrying the given
// token version. The version travels as a decimal string so the gateway can
// compare it byte-for-byte against the cached value.
func (s *Signer) Sign(subject string, version int) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"iss": s.issuer,
		"aud": s.audience,
		"ver": strconv.Itoa(version),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := jt.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure, lifetime, issuer and audience of the
// raw token and returns its claims. It never consults any store.
func (s *Signer) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, fmt.Errorf("verify token: %w", err)
		}
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	sub, _ := mc["sub"].(string)
	ver, _ := mc["ver"].(string)
	if sub == "" || ver == "" {
		return nil, ErrClaimMissing
	}

	c := &Claims{Subject: sub, Version: ver}
	if jti, ok := mc["jti"].(string); ok {
		c.TokenID = jti
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
