package main

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DB is the durable store behind the auth core. It doubles as the
// membership/group authority: middleware and the session issuer consult
// it for live role and ownership facts instead of trusting token
// claims.
//
// Lookups return (nil, nil) for absent rows; errors are reserved for
// storage faults. UpdateMembershipRole and DeleteMembership return
// ErrIsOwner, without mutating anything, when the target user is the
// group's owner.
type DB interface {
	Init() error
	// User operations
	CreateUser(name, email string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id string) (*User, error)
	// Group operations
	CreateGroup(name, ownerID string) (*Group, error)
	GetGroup(id string) (*Group, error)
	DeleteGroup(id string) error
	// Membership operations
	GetMembership(userID, groupID string) (*Membership, error)
	CreateMembership(userID, groupID string, role Role) error // no-op if it already exists
	UpdateMembershipRole(userID, groupID string, role Role) error
	DeleteMembership(userID, groupID string) error
	ListMembers(groupID string) ([]*Membership, error)
	ListGroupsForUser(userID string) ([]GroupSummary, error)
	// Magic link operations
	CreateMagicLink(link *MagicLink) error
	GetMagicLink(token string) (*MagicLink, error)
	ConsumeMagicLink(token string) error
}

type membershipKey struct{ userID, groupID string }

// MemDB is the in-memory adapter used in tests and local development.
// It counts membership writes so tests can assert that guarded calls
// performed no mutation.
type MemDB struct {
	mu          sync.RWMutex
	users       map[string]*User // by id
	groups      map[string]*Group
	memberships map[membershipKey]*Membership
	links       map[string]*MagicLink

	membershipWrites int
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:       map[string]*User{},
		groups:      map[string]*Group{},
		memberships: map[membershipKey]*Membership{},
		links:       map[string]*MagicLink{},
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(name, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, ErrConflict
		}
	}
	u := &User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) CreateGroup(name, ownerID string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &Group{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	m.groups[g.ID] = g
	return g, nil
}

func (m *MemDB) GetGroup(id string) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) DeleteGroup(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, id)
	for k := range m.memberships {
		if k.groupID == id {
			delete(m.memberships, k)
		}
	}
	return nil
}

func (m *MemDB) GetMembership(userID, groupID string) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mb, ok := m.memberships[membershipKey{userID, groupID}]; ok {
		cp := *mb
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) CreateMembership(userID, groupID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := membershipKey{userID, groupID}
	if _, ok := m.memberships[key]; ok {
		return nil
	}
	m.membershipWrites++
	m.memberships[key] = &Membership{UserID: userID, GroupID: groupID, Role: role, JoinedAt: time.Now()}
	return nil
}

func (m *MemDB) UpdateMembershipRole(userID, groupID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[groupID]; ok && g.OwnerID == userID {
		return ErrIsOwner
	}
	mb, ok := m.memberships[membershipKey{userID, groupID}]
	if !ok {
		return ErrNotFound
	}
	m.membershipWrites++
	mb.Role = role
	return nil
}

func (m *MemDB) DeleteMembership(userID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[groupID]; ok && g.OwnerID == userID {
		return ErrIsOwner
	}
	if _, ok := m.memberships[membershipKey{userID, groupID}]; !ok {
		return ErrNotFound
	}
	m.membershipWrites++
	delete(m.memberships, membershipKey{userID, groupID})
	return nil
}

func (m *MemDB) ListMembers(groupID string) ([]*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Membership
	for _, mb := range m.memberships {
		if mb.GroupID == groupID {
			cp := *mb
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *MemDB) ListGroupsForUser(userID string) ([]GroupSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GroupSummary
	for _, mb := range m.memberships {
		if mb.UserID != userID {
			continue
		}
		if g, ok := m.groups[mb.GroupID]; ok {
			out = append(out, GroupSummary{ID: g.ID, Name: g.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemDB) CreateMagicLink(link *MagicLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.Token] = &cp
	return nil
}

func (m *MemDB) GetMagicLink(token string) (*MagicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.links[token]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ConsumeMagicLink(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[token]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	l.UsedAt = &now
	return nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }
