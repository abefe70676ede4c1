package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
)

// SessionClaims is the payload of a signed session token. Sessions have
// no server-side record; the token is the whole session.
type SessionClaims struct {
	GroupID string    `json:"gid"`
	Role    Role      `json:"role"`
	Kind    TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string { return c.Subject }

// encodeSession signs a compact HS256 token carrying identity and
// authorization claims. Expiry is issuedAt + ttl in Unix seconds.
func encodeSession(userID, groupID string, role Role, kind TokenKind, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		GroupID: groupID,
		Role:    role,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(secret)
}

// decodeSession verifies a session token and returns its claims, or nil
// for any failure: wrong shape, bad signature, unparseable payload,
// expired (now == expiresAt counts as expired), or claims outside the
// closed kind/role sets. Callers get no sub-reason on purpose.
func decodeSession(token string, secret []byte) *SessionClaims {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.ExpiresAt == nil || !time.Now().Before(claims.ExpiresAt.Time) {
		return nil
	}
	switch claims.Kind {
	case TokenAccess, TokenRefresh:
	default:
		return nil
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return nil
	}
	if claims.Subject == "" || claims.GroupID == "" {
		return nil
	}
	return &claims
}
