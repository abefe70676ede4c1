package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := encodeSession("u1", "g1", RoleMember, TokenAccess, testSecret, 900*time.Second)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)
	require.NotContains(t, token, "=")

	claims := decodeSession(token, testSecret)
	require.NotNil(t, claims)
	require.Equal(t, "u1", claims.UserID())
	require.Equal(t, "g1", claims.GroupID)
	require.Equal(t, RoleMember, claims.Role)
	require.Equal(t, TokenAccess, claims.Kind)
	require.Equal(t, claims.IssuedAt.Unix()+900, claims.ExpiresAt.Unix())
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := encodeSession("u1", "g1", RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)
	require.Nil(t, decodeSession(token, []byte("another-secret")))
}

func TestSessionTokenTampered(t *testing.T) {
	token, err := encodeSession("u1", "g1", RoleMember, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	require.Nil(t, decodeSession(tampered, testSecret))
}

func TestSessionTokenMalformed(t *testing.T) {
	require.Nil(t, decodeSession("", testSecret))
	require.Nil(t, decodeSession("not-a-token", testSecret))
	require.Nil(t, decodeSession("a.b", testSecret))
	require.Nil(t, decodeSession("a.b.c.d", testSecret))
}

func TestSessionTokenExpiry(t *testing.T) {
	// zero and negative TTLs are dead on arrival: now == expiresAt
	// counts as expired
	token, err := encodeSession("u1", "g1", RoleMember, TokenAccess, testSecret, 0)
	require.NoError(t, err)
	require.Nil(t, decodeSession(token, testSecret))

	token, err = encodeSession("u1", "g1", RoleMember, TokenAccess, testSecret, -time.Minute)
	require.NoError(t, err)
	require.Nil(t, decodeSession(token, testSecret))
}

func TestSessionTokenRefreshKind(t *testing.T) {
	token, err := encodeSession("u1", "g1", RoleAdmin, TokenRefresh, testSecret, time.Hour)
	require.NoError(t, err)
	claims := decodeSession(token, testSecret)
	require.NotNil(t, claims)
	require.Equal(t, TokenRefresh, claims.Kind)
}

func TestSessionTokenRejectsUnknownKindAndRole(t *testing.T) {
	token, err := encodeSession("u1", "g1", "superuser", TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)
	require.Nil(t, decodeSession(token, testSecret))

	token, err = encodeSession("u1", "g1", RoleMember, "session", testSecret, time.Minute)
	require.NoError(t, err)
	require.Nil(t, decodeSession(token, testSecret))
}
