package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerMembershipIsGuarded(t *testing.T) {
	_, db, _ := newTestApp()
	owner, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	before := db.membershipWrites

	err := db.UpdateMembershipRole(owner.ID, group.ID, RoleMember)
	require.ErrorIs(t, err, ErrIsOwner)

	err = db.DeleteMembership(owner.ID, group.ID)
	require.ErrorIs(t, err, ErrIsOwner)

	// the guard refuses before touching storage
	require.Equal(t, before, db.membershipWrites)
	mem, _ := db.GetMembership(owner.ID, group.ID)
	require.NotNil(t, mem)
	require.Equal(t, RoleAdmin, mem.Role)
}

func TestNonOwnerMembershipMutations(t *testing.T) {
	_, db, _ := newTestApp()
	_, group := seedGroup(db, "Ana", "ana@example.com", "Family")
	ben, _ := db.CreateUser("Ben", "ben@example.com")
	require.NoError(t, db.CreateMembership(ben.ID, group.ID, RoleMember))

	require.NoError(t, db.UpdateMembershipRole(ben.ID, group.ID, RoleAdmin))
	mem, _ := db.GetMembership(ben.ID, group.ID)
	require.Equal(t, RoleAdmin, mem.Role)

	require.NoError(t, db.DeleteMembership(ben.ID, group.ID))
	mem, _ = db.GetMembership(ben.ID, group.ID)
	require.Nil(t, mem)

	require.ErrorIs(t, db.UpdateMembershipRole(ben.ID, group.ID, RoleMember), ErrNotFound)
	require.ErrorIs(t, db.DeleteMembership(ben.ID, group.ID), ErrNotFound)
}

func TestListGroupsForUser(t *testing.T) {
	_, db, _ := newTestApp()
	ana, family := seedGroup(db, "Ana", "ana@example.com", "Family")
	hiking, _ := db.CreateGroup("Hiking", ana.ID)
	require.NoError(t, db.CreateMembership(ana.ID, hiking.ID, RoleAdmin))

	groups, err := db.ListGroupsForUser(ana.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	// sorted by name
	require.Equal(t, family.ID, groups[0].ID)
	require.Equal(t, hiking.ID, groups[1].ID)
}

func TestSQLiteAdapter(t *testing.T) {
	db, err := NewSQLiteDB(t.TempDir() + "/albumauth_test.db")
	require.NoError(t, err)
	defer db.close()

	ana, err := db.CreateUser("Ana", "ana@example.com")
	require.NoError(t, err)
	got, err := db.GetUserByEmail("ana@example.com")
	require.NoError(t, err)
	require.Equal(t, ana.ID, got.ID)

	missing, err := db.GetUserByID("nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	group, err := db.CreateGroup("Family", ana.ID)
	require.NoError(t, err)
	require.NoError(t, db.CreateMembership(ana.ID, group.ID, RoleAdmin))

	// idempotent create: the second insert is a no-op
	require.NoError(t, db.CreateMembership(ana.ID, group.ID, RoleMember))
	mem, err := db.GetMembership(ana.ID, group.ID)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, mem.Role)

	// owner guard holds in the SQL adapter too
	require.ErrorIs(t, db.UpdateMembershipRole(ana.ID, group.ID, RoleMember), ErrIsOwner)
	require.ErrorIs(t, db.DeleteMembership(ana.ID, group.ID), ErrIsOwner)

	link := &MagicLink{
		Token:      "sqlite-link",
		GroupID:    group.ID,
		Email:      "ben@example.com",
		Kind:       LinkInvite,
		InviteRole: RoleMember,
		CreatedAt:  ana.CreatedAt,
		ExpiresAt:  ana.CreatedAt.Add(magicLinkTTL),
	}
	require.NoError(t, db.CreateMagicLink(link))
	stored, err := db.GetMagicLink("sqlite-link")
	require.NoError(t, err)
	require.Equal(t, LinkInvite, stored.Kind)
	require.Equal(t, RoleMember, stored.InviteRole)
	require.Nil(t, stored.UsedAt)

	require.NoError(t, db.ConsumeMagicLink("sqlite-link"))
	stored, err = db.GetMagicLink("sqlite-link")
	require.NoError(t, err)
	require.NotNil(t, stored.UsedAt)

	require.ErrorIs(t, db.ConsumeMagicLink("missing-link"), ErrNotFound)
}
