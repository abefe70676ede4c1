package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// HandleCreateGroup creates a group owned by the caller and mints a
// pair scoped to it. The owner also gets an admin membership row so
// member listings include them.
func (a *App) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Group name is required")
		return
	}
	group, err := a.DB.CreateGroup(name, sc.UserID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if err := a.DB.CreateMembership(sc.UserID(), group.ID, RoleAdmin); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	pair, err := a.issuePair(sc.UserID(), group.ID, RoleAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"group":       GroupSummary{ID: group.ID, Name: group.Name},
		"accessToken": pair.AccessToken,
	})
}

// HandleListMembers lists the memberships of the caller's group.
func (a *App) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	if !requireSameGroup(w, r, groupID) {
		return
	}
	members, err := a.DB.ListMembers(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	group, err := a.DB.GetGroup(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	type memberOut struct {
		UserID string `json:"userId"`
		Role   Role   `json:"role"`
		Owner  bool   `json:"owner"`
	}
	out := make([]memberOut, 0, len(members))
	for _, m := range members {
		out = append(out, memberOut{
			UserID: m.UserID,
			Role:   m.Role,
			Owner:  group != nil && group.OwnerID == m.UserID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": out})
}

// HandleUpdateMemberRole changes a member's role. The owner's role is
// untouchable; the data layer refuses with ErrIsOwner.
func (a *App) HandleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, userID := vars["groupID"], vars["userID"]
	if !requireSameGroup(w, r, groupID) {
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	role, ok := ParseRole(in.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Role must be admin or member")
		return
	}
	switch err := a.DB.UpdateMembershipRole(userID, groupID, role); err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "role": role})
	case ErrIsOwner:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "The owner's role cannot be changed")
	case ErrNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Membership not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// HandleRemoveMember removes a member from the group. Removing the
// owner is refused at the data layer.
func (a *App) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, userID := vars["groupID"], vars["userID"]
	if !requireSameGroup(w, r, groupID) {
		return
	}
	switch err := a.DB.DeleteMembership(userID, groupID); err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
	case ErrIsOwner:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "The group owner cannot be removed")
	case ErrNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Membership not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// HandleDeleteGroup deletes the caller's group. Route setup wraps this
// in RequireOwner.
func (a *App) HandleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	if !requireSameGroup(w, r, groupID) {
		return
	}
	if err := a.DB.DeleteGroup(groupID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
