package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, app *App, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("{}")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.routes().ServeHTTP(w, req)
	return w
}

func errMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e.Message
}

func TestRequireAuthMissingToken(t *testing.T) {
	app, _, _ := newTestApp()
	w := doRequest(t, app, "GET", "/api/v1/auth/me", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Unauthorized", errMessage(t, w))
}

func TestRequireAuthBadToken(t *testing.T) {
	app, _, _ := newTestApp()
	w := doRequest(t, app, "GET", "/api/v1/auth/me", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Invalid or expired token", errMessage(t, w))
}

func TestRequireAuthRejectsRefreshKind(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	pair, err := app.issuePair(owner.ID, group.ID, RoleAdmin)
	require.NoError(t, err)

	w := doRequest(t, app, "GET", "/api/v1/auth/me", pair.RefreshToken, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Invalid or expired token", errMessage(t, w))
}

func TestQueryTokenAcceptedHeaderWins(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	pair, err := app.issuePair(owner.ID, group.ID, RoleAdmin)
	require.NoError(t, err)

	// query parameter alone works (streamed downloads can't set
	// headers)
	req := httptest.NewRequest("GET", "/api/v1/auth/me?token="+pair.AccessToken, nil)
	w := httptest.NewRecorder()
	app.routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// a bad header beats a good query token
	req = httptest.NewRequest("GET", "/api/v1/auth/me?token="+pair.AccessToken, nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	app.routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// The central regression test: a still-valid access token carrying an
// admin role claim must not survive a live demotion.
func TestRequireAdminStaleTokenDemotion(t *testing.T) {
	app, db, _ := newTestApp()
	_, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	ben, _ := db.CreateUser("Ben", "ben@example.com")
	require.NoError(t, db.CreateMembership(ben.ID, group.ID, RoleAdmin))

	token, err := encodeSession(ben.ID, group.ID, RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	require.NoError(t, db.UpdateMembershipRole(ben.ID, group.ID, RoleMember))

	w := doRequest(t, app, "POST", "/api/v1/auth/invite", token,
		`{"email":"x@example.com","role":"member"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Admin access required", errMessage(t, w))
}

func TestRequireAdminAcceptsLiveAdmin(t *testing.T) {
	app, db, _ := newTestApp()
	_, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	ben, _ := db.CreateUser("Ben", "ben@example.com")
	require.NoError(t, db.CreateMembership(ben.ID, group.ID, RoleAdmin))

	// the token even claims the wrong role; only the live row counts
	token, err := encodeSession(ben.ID, group.ID, RoleMember, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	w := doRequest(t, app, "POST", "/api/v1/auth/invite", token,
		`{"email":"x@example.com","role":"member"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdminAcceptsOwnerWithMemberRole(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	// owner demoted in the role table; ownership still wins
	mem := db.memberships[membershipKey{owner.ID, group.ID}]
	mem.Role = RoleMember

	token, err := encodeSession(owner.ID, group.ID, RoleMember, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	w := doRequest(t, app, "POST", "/api/v1/auth/invite", token,
		`{"email":"x@example.com","role":"member"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireOwner(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	ben, _ := db.CreateUser("Ben", "ben@example.com")
	require.NoError(t, db.CreateMembership(ben.ID, group.ID, RoleAdmin))

	// a non-owner admin is refused with the exact message
	adminToken, err := encodeSession(ben.ID, group.ID, RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)
	w := doRequest(t, app, "DELETE", "/api/v1/groups/"+group.ID, adminToken, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Only the group owner can perform this action", errMessage(t, w))

	// the owner passes even with a membership row saying member
	mem := db.memberships[membershipKey{owner.ID, group.ID}]
	mem.Role = RoleMember
	ownerToken, err := encodeSession(owner.ID, group.ID, RoleMember, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)
	w = doRequest(t, app, "DELETE", "/api/v1/groups/"+group.ID, ownerToken, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOwnerPassesWithoutMembershipRow(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	// ownership is authority on its own; it survives the row vanishing
	delete(db.memberships, membershipKey{owner.ID, group.ID})

	token, err := encodeSession(owner.ID, group.ID, RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	w := doRequest(t, app, "POST", "/api/v1/auth/invite", token,
		`{"email":"x@example.com","role":"member"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, app, "DELETE", "/api/v1/groups/"+group.ID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireOwnerGroupGoneSameMessage(t *testing.T) {
	app, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	token, err := encodeSession(owner.ID, group.ID, RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	require.NoError(t, db.DeleteGroup(group.ID))
	w := doRequest(t, app, "DELETE", "/api/v1/groups/"+group.ID, token, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Only the group owner can perform this action", errMessage(t, w))
}

// Every route taking a {groupID} path parameter must refuse a token
// scoped to a different group.
func TestCrossTenantGuard(t *testing.T) {
	app, db, _ := newTestApp()
	owner, _ := seedGroup(db, "Ana", "ana@example.com", "Family")
	other, _ := db.CreateGroup("Other", owner.ID)
	require.NoError(t, db.CreateMembership(owner.ID, other.ID, RoleAdmin))

	// token scoped to Other, requests against Family
	_, family := seedGroup(db, "Dana", "dana@example.com", "Family Two")
	token, err := encodeSession(owner.ID, other.ID, RoleAdmin, TokenAccess, testSecret, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		method, path, body string
	}{
		{"GET", "/api/v1/groups/" + family.ID + "/members", ""},
		{"PUT", "/api/v1/groups/" + family.ID + "/members/u2/role", `{"role":"member"}`},
		{"DELETE", "/api/v1/groups/" + family.ID + "/members/u2", ""},
		// owning Other does not reach into Family's delete either
		{"DELETE", "/api/v1/groups/" + family.ID, ""},
	}
	for _, tc := range cases {
		w := doRequest(t, app, tc.method, tc.path, token, tc.body)
		require.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}

	// and Family still exists afterwards
	g, err := db.GetGroup(family.ID)
	require.NoError(t, err)
	require.NotNil(t, g)
}
