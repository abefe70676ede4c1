package main

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const magicLinkTTL = 15 * time.Minute

// genToken returns n random bytes rendered as hex.
func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// VerifyReason explains why a magic link failed verification.
type VerifyReason string

const (
	ReasonNotFound    VerifyReason = "not_found"
	ReasonAlreadyUsed VerifyReason = "already_used"
	ReasonExpired     VerifyReason = "expired"
)

// VerifyResult is the outcome of checking a magic link. Invalid links
// carry a reason; valid ones carry the record.
type VerifyResult struct {
	Valid  bool
	Reason VerifyReason
	Link   *MagicLink
}

// issueMagicLink creates and persists a single-use token with a
// 15-minute window. inviteRole is empty for login links.
func (a *App) issueMagicLink(groupID, email string, kind LinkKind, inviteRole Role) (*MagicLink, error) {
	token, err := genToken(16)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	link := &MagicLink{
		Token:      token,
		GroupID:    groupID,
		Email:      email,
		Kind:       kind,
		InviteRole: inviteRole,
		CreatedAt:  now,
		ExpiresAt:  now.Add(magicLinkTTL),
	}
	if err := a.DB.CreateMagicLink(link); err != nil {
		return nil, err
	}
	return link, nil
}

// verifyMagicLink checks a token without consuming it. Reason
// precedence: not_found, then already_used, then expired -- a consumed
// token stays already_used even after its window closes.
func (a *App) verifyMagicLink(token string) (VerifyResult, error) {
	link, err := a.DB.GetMagicLink(token)
	if err != nil {
		return VerifyResult{}, err
	}
	if link == nil {
		return VerifyResult{Reason: ReasonNotFound}, nil
	}
	if link.UsedAt != nil {
		return VerifyResult{Reason: ReasonAlreadyUsed}, nil
	}
	if !time.Now().Before(link.ExpiresAt) {
		return VerifyResult{Reason: ReasonExpired}, nil
	}
	return VerifyResult{Valid: true, Link: link}, nil
}

// redemptionState tracks a magic link through redemption.
type redemptionState int

const (
	redemptionPresented redemptionState = iota
	redemptionAwaitingName
	redemptionConsumed
)

// redemption walks a verified magic link through
// presented -> awaitingName -> consumed. Consumption is deferred until
// the link's effects are fully applied: an invite that still needs a
// display name parks in awaitingName without touching the stored
// token, so the same link can be presented again with the name filled
// in.
type redemption struct {
	app   *App
	link  *MagicLink
	state redemptionState
}

func (r *redemption) awaitName() RedeemResult {
	r.state = redemptionAwaitingName
	return RedeemResult{NeedsName: true}
}

// consume marks the stored token used. Once the redemption has reached
// consumed, further calls are no-ops so the used-at timestamp is
// written exactly once.
func (r *redemption) consume() error {
	if r.state == redemptionConsumed {
		return nil
	}
	if err := r.app.DB.ConsumeMagicLink(r.link.Token); err != nil {
		return err
	}
	r.state = redemptionConsumed
	return nil
}

// RedeemResult is what a redemption attempt produced. Exactly one of
// the following holds: Invalid (with Reason), NeedsName,
// NeedsGroupSelection (with Groups), or a full token pair.
type RedeemResult struct {
	Invalid             bool
	Reason              VerifyReason
	NeedsName           bool
	NeedsGroupSelection bool
	Groups              []GroupSummary
	User                *User
	GroupID             string
	AccessToken         string
	RefreshToken        string
}

// redeemMagicLink verifies a token and applies its effects, consuming
// it on success. Consumption is not exclusive: two concurrent
// redemptions of the same still-valid token can both reach the consume
// step, so every side effect here is idempotent (user looked up before
// create, membership created only if absent).
func (a *App) redeemMagicLink(token, displayName string) (RedeemResult, error) {
	vr, err := a.verifyMagicLink(token)
	if err != nil {
		return RedeemResult{}, err
	}
	if !vr.Valid {
		return RedeemResult{Invalid: true, Reason: vr.Reason}, nil
	}
	r := &redemption{app: a, link: vr.Link, state: redemptionPresented}

	user, err := a.DB.GetUserByEmail(r.link.Email)
	if err != nil {
		return RedeemResult{}, err
	}

	switch r.link.Kind {
	case LinkInvite:
		return a.redeemInvite(r, user, displayName)
	case LinkLogin:
		return a.redeemLogin(r, user)
	}
	return RedeemResult{Invalid: true, Reason: ReasonNotFound}, nil
}

func (a *App) redeemInvite(r *redemption, user *User, displayName string) (RedeemResult, error) {
	if user == nil {
		if displayName == "" {
			return r.awaitName(), nil
		}
		var err error
		user, err = a.DB.CreateUser(displayName, r.link.Email)
		if err != nil {
			return RedeemResult{}, err
		}
	}
	// no-op when the invitee is already a member; their existing role wins
	if err := a.DB.CreateMembership(user.ID, r.link.GroupID, r.link.InviteRole); err != nil {
		return RedeemResult{}, err
	}
	mem, err := a.DB.GetMembership(user.ID, r.link.GroupID)
	if err != nil {
		return RedeemResult{}, err
	}
	if mem == nil {
		return RedeemResult{Invalid: true, Reason: ReasonNotFound}, nil
	}
	if err := r.consume(); err != nil {
		return RedeemResult{}, err
	}
	pair, err := a.issuePair(user.ID, r.link.GroupID, mem.Role)
	if err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{User: user, GroupID: r.link.GroupID, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (a *App) redeemLogin(r *redemption, user *User) (RedeemResult, error) {
	if user == nil {
		// the account vanished between issuance and redemption
		return RedeemResult{Invalid: true, Reason: ReasonNotFound}, nil
	}
	groups, err := a.DB.ListGroupsForUser(user.ID)
	if err != nil {
		return RedeemResult{}, err
	}
	if err := r.consume(); err != nil {
		return RedeemResult{}, err
	}
	if len(groups) == 0 {
		return RedeemResult{User: user, NeedsGroupSelection: true, Groups: groups}, nil
	}
	// default to the first group; the client can switch afterwards
	mem, err := a.DB.GetMembership(user.ID, groups[0].ID)
	if err != nil {
		return RedeemResult{}, err
	}
	if mem == nil {
		return RedeemResult{User: user, NeedsGroupSelection: true, Groups: groups}, nil
	}
	pair, err := a.issuePair(user.ID, groups[0].ID, mem.Role)
	if err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{User: user, GroupID: groups[0].ID, Groups: groups, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}
