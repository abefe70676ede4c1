package main

// TokenPair is a freshly minted access/refresh pair scoped to one
// group.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// issuePair mints an access/refresh pair for a user acting in a group
// with the given role.
func (a *App) issuePair(userID, groupID string, role Role) (TokenPair, error) {
	access, err := encodeSession(userID, groupID, role, TokenAccess, a.secret, accessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := encodeSession(userID, groupID, role, TokenRefresh, a.secret, refreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshResult is either a rotated pair or a prompt to pick a new
// active group (the token's group no longer has a membership for this
// user).
type RefreshResult struct {
	NeedsGroupSelection bool
	Groups              []GroupSummary
	Pair                *TokenPair
}

// refreshSession rotates a refresh token into a new pair. The role
// embedded in the old token is ignored: the live membership is
// re-resolved so promotions and demotions take effect on the next
// refresh. Old refresh tokens stay cryptographically valid until
// their own expiry; rotation here is semantic, not revocation.
func (a *App) refreshSession(token string) (RefreshResult, error) {
	claims := decodeSession(token, a.secret)
	if claims == nil || claims.Kind != TokenRefresh {
		return RefreshResult{}, ErrInvalidToken
	}
	user, err := a.DB.GetUserByID(claims.UserID())
	if err != nil {
		return RefreshResult{}, err
	}
	if user == nil {
		return RefreshResult{}, ErrInvalidToken
	}
	mem, err := a.DB.GetMembership(user.ID, claims.GroupID)
	if err != nil {
		return RefreshResult{}, err
	}
	if mem == nil {
		// group deleted or the user was removed; hand back the
		// remaining groups instead of failing hard
		groups, err := a.DB.ListGroupsForUser(user.ID)
		if err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{NeedsGroupSelection: true, Groups: groups}, nil
	}
	pair, err := a.issuePair(user.ID, claims.GroupID, mem.Role)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{Pair: &pair}, nil
}

// switchGroup mints a pair scoped to another group the user already
// belongs to. This is how one identity moves between groups without
// going back through email.
func (a *App) switchGroup(userID, targetGroupID string) (TokenPair, error) {
	group, err := a.DB.GetGroup(targetGroupID)
	if err != nil {
		return TokenPair{}, err
	}
	if group == nil {
		return TokenPair{}, ErrGroupNotFound
	}
	mem, err := a.DB.GetMembership(userID, targetGroupID)
	if err != nil {
		return TokenPair{}, err
	}
	if mem == nil {
		return TokenPair{}, ErrNotAMember
	}
	return a.issuePair(userID, targetGroupID, mem.Role)
}
