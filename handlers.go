package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const refreshCookieName = "album_refresh"

// loginLinkResponse is returned for every login-link request so the
// endpoint never confirms or denies that an address is registered.
const loginLinkResponse = "If that email is registered, a sign-in link is on its way."

func setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/v1/auth",
		MaxAge:   int(refreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *App) magicLinkURL(token string) string {
	return fmt.Sprintf("%s/auth/%s", a.frontendURL, token)
}

// HandleLoginLink mails a sign-in link if the address belongs to a
// known user. The response body is identical either way.
func (a *App) HandleLoginLink(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "A valid email is required")
		return
	}
	if !a.linkLimiter.allow(email) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many link requests, try again later")
		return
	}

	user, err := a.DB.GetUserByEmail(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if user != nil {
		link, err := a.issueMagicLink("", email, LinkLogin, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		mail := buildMagicLinkEmail(MagicLinkEmailData{
			SiteName:  a.siteName,
			MagicLink: a.magicLinkURL(link.Token),
			ExpiresIn: "15 minutes",
		})
		mail.To = email
		if err := a.mailer.Send(mail); err != nil {
			// deliberately still the generic response
			a.logger.Error("send login link", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": loginLinkResponse})
}

// HandleInvite mails an invite link for the caller's active group.
// Wrapped in RequireAdmin at route setup.
func (a *App) HandleInvite(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	var in struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "A valid email is required")
		return
	}
	role, ok := ParseRole(in.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Role must be admin or member")
		return
	}
	if !a.linkLimiter.allow(email) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many link requests, try again later")
		return
	}

	group, err := a.DB.GetGroup(sc.GroupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Group not found")
		return
	}

	link, err := a.issueMagicLink(sc.GroupID, email, LinkInvite, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	mail := buildMagicLinkEmail(MagicLinkEmailData{
		SiteName:  a.siteName,
		GroupName: group.Name,
		MagicLink: a.magicLinkURL(link.Token),
		ExpiresIn: "15 minutes",
		Invite:    true,
	})
	mail.To = email
	if err := a.mailer.Send(mail); err != nil {
		a.logger.Error("send invite", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to send invite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invite sent"})
}

// HandleVerify redeems a magic link. Invite redemptions for unknown
// users pause for a display name: the first call answers needsName and
// leaves the token unconsumed, the second call carries the name.
func (a *App) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}

	res, err := a.redeemMagicLink(in.Token, strings.TrimSpace(in.Name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	switch {
	case res.Invalid:
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", verifyFailureMessage(res.Reason))
	case res.NeedsName:
		writeJSON(w, http.StatusOK, map[string]bool{"needsName": true})
	case res.NeedsGroupSelection:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"needsGroupSelection": true,
			"groups":              groupList(res.Groups),
		})
	default:
		setRefreshCookie(w, res.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user": map[string]string{
				"id":    res.User.ID,
				"name":  res.User.Name,
				"email": res.User.Email,
			},
			"groupId":     res.GroupID,
			"accessToken": res.AccessToken,
		})
	}
}

func verifyFailureMessage(reason VerifyReason) string {
	switch reason {
	case ReasonAlreadyUsed:
		return "This link has already been used"
	case ReasonExpired:
		return "This link has expired"
	default:
		return "This link is invalid"
	}
}

// HandleRefresh rotates the refresh token from the cookie (JSON body as
// fallback) into a fresh pair. A stale group membership turns into a
// group-selection prompt instead of an error.
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	res, err := a.refreshSession(token)
	if err != nil {
		if err == ErrInvalidToken {
			clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if res.NeedsGroupSelection {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"needsGroupSelection": true,
			"groups":              groupList(res.Groups),
		})
		return
	}
	setRefreshCookie(w, res.Pair.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": res.Pair.AccessToken})
}

func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err == nil {
		return in.RefreshToken
	}
	return ""
}

// HandleSwitchGroup mints a pair scoped to another group the caller
// belongs to. It accepts an access token, and falls back to the
// refresh cookie so a client parked on the group-selection prompt can
// complete the switch.
func (a *App) HandleSwitchGroup(w http.ResponseWriter, r *http.Request) {
	userID := a.switchCallerID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}
	var in struct {
		GroupID string `json:"groupId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.GroupID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "groupId is required")
		return
	}
	pair, err := a.switchGroup(userID, in.GroupID)
	switch err {
	case nil:
	case ErrGroupNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Group not found")
		return
	case ErrNotAMember:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this group")
		return
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken": pair.AccessToken,
		"groupId":     in.GroupID,
	})
}

// switchCallerID resolves the caller from an access token or, failing
// that, the refresh cookie.
func (a *App) switchCallerID(r *http.Request) string {
	if token := extractToken(r); token != "" {
		if sc := decodeSession(token, a.secret); sc != nil && sc.Kind == TokenAccess {
			return sc.UserID()
		}
	}
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		if sc := decodeSession(c.Value, a.secret); sc != nil && sc.Kind == TokenRefresh {
			return sc.UserID()
		}
	}
	return ""
}

// HandleLogout clears the refresh cookie. Already-issued access tokens
// stay valid until their natural expiry; there is no revocation list.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

// HandleMe returns the authenticated identity and claims.
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	user, err := a.DB.GetUserByID(sc.UserID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]string{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"groupId": sc.GroupID,
		"role":    sc.Role,
	})
}

func groupList(groups []GroupSummary) []GroupSummary {
	if groups == nil {
		return []GroupSummary{}
	}
	return groups
}
