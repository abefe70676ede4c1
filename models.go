package main

import "time"

// Role is a membership role within a group. The group owner is not a
// role: ownership lives on the Group record and is checked separately.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole validates a role string from the wire.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), true
	}
	return "", false
}

// TokenKind discriminates access and refresh session tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// LinkKind discriminates the two flavors of magic link.
type LinkKind string

const (
	LinkInvite LinkKind = "invite"
	LinkLogin  LinkKind = "login"
)

// User is a global identity; a user may belong to any number of groups.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Group is the tenant boundary. OwnerID is fixed at creation and is
// never writable through the role-update path.
type Group struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// Membership ties a user to a group with a role, unique per
// (UserID, GroupID).
type Membership struct {
	UserID   string
	GroupID  string
	Role     Role
	JoinedAt time.Time
}

// MagicLink is a single-use emailed token. InviteRole is empty for
// login links. A link is redeemable iff UsedAt is nil and the expiry
// has not passed.
type MagicLink struct {
	Token      string
	GroupID    string
	Email      string
	Kind       LinkKind
	InviteRole Role // zero value for login links
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// GroupSummary is what group pickers get back when a session needs a
// new active group.
type GroupSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
