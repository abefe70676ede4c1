package main

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SQLiteDB backs the store with a local sqlite file.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, name TEXT, email TEXT UNIQUE, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS groups (id TEXT PRIMARY KEY, name TEXT, owner_id TEXT, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS memberships (user_id TEXT, group_id TEXT, role TEXT, joined_at INTEGER, PRIMARY KEY (user_id, group_id));`,
		`CREATE TABLE IF NOT EXISTS magic_links (token TEXT PRIMARY KEY, group_id TEXT, email TEXT, kind TEXT, invite_role TEXT, created_at INTEGER, expires_at INTEGER, used_at INTEGER);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateUser(name, email string) (*User, error) {
	u := &User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now()}
	_, err := s.db.Exec(`INSERT INTO users(id,name,email,created_at) VALUES(?,?,?,?)`,
		u.ID, u.Name, u.Email, u.CreatedAt.Unix())
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,name,email,created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,name,email,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(created, 0)
	return &u, nil
}

func (s *SQLiteDB) CreateGroup(name, ownerID string) (*Group, error) {
	g := &Group{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	_, err := s.db.Exec(`INSERT INTO groups(id,name,owner_id,created_at) VALUES(?,?,?,?)`,
		g.ID, g.Name, g.OwnerID, g.CreatedAt.Unix())
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *SQLiteDB) GetGroup(id string) (*Group, error) {
	row := s.db.QueryRow(`SELECT id,name,owner_id,created_at FROM groups WHERE id = ?`, id)
	var g Group
	var created int64
	if err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	g.CreatedAt = time.Unix(created, 0)
	return &g, nil
}

func (s *SQLiteDB) DeleteGroup(id string) error {
	if _, err := s.db.Exec(`DELETE FROM memberships WHERE group_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM groups WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) GetMembership(userID, groupID string) (*Membership, error) {
	row := s.db.QueryRow(`SELECT user_id,group_id,role,joined_at FROM memberships WHERE user_id = ? AND group_id = ?`, userID, groupID)
	var m Membership
	var joined int64
	if err := row.Scan(&m.UserID, &m.GroupID, &m.Role, &joined); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.JoinedAt = time.Unix(joined, 0)
	return &m, nil
}

func (s *SQLiteDB) CreateMembership(userID, groupID string, role Role) error {
	_, err := s.db.Exec(`INSERT INTO memberships(user_id,group_id,role,joined_at) VALUES(?,?,?,?)
		ON CONFLICT(user_id,group_id) DO NOTHING`, userID, groupID, role, time.Now().Unix())
	return err
}

// guardOwner refuses membership mutations against the group's owner.
func (s *SQLiteDB) guardOwner(userID, groupID string) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}
	if g != nil && g.OwnerID == userID {
		return ErrIsOwner
	}
	return nil
}

func (s *SQLiteDB) UpdateMembershipRole(userID, groupID string, role Role) error {
	if err := s.guardOwner(userID, groupID); err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE memberships SET role = ? WHERE user_id = ? AND group_id = ?`, role, userID, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeleteMembership(userID, groupID string) error {
	if err := s.guardOwner(userID, groupID); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM memberships WHERE user_id = ? AND group_id = ?`, userID, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) ListMembers(groupID string) ([]*Membership, error) {
	rows, err := s.db.Query(`SELECT user_id,group_id,role,joined_at FROM memberships WHERE group_id = ? ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Membership
	for rows.Next() {
		var m Membership
		var joined int64
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.Role, &joined); err != nil {
			return nil, err
		}
		m.JoinedAt = time.Unix(joined, 0)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) ListGroupsForUser(userID string) ([]GroupSummary, error) {
	rows, err := s.db.Query(`SELECT g.id, g.name FROM groups g JOIN memberships m ON m.group_id = g.id WHERE m.user_id = ? ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GroupSummary
	for rows.Next() {
		var g GroupSummary
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CreateMagicLink(link *MagicLink) error {
	var role sql.NullString
	if link.InviteRole != "" {
		role = sql.NullString{String: string(link.InviteRole), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO magic_links(token,group_id,email,kind,invite_role,created_at,expires_at) VALUES(?,?,?,?,?,?,?)`,
		link.Token, link.GroupID, link.Email, link.Kind, role, link.CreatedAt.Unix(), link.ExpiresAt.Unix())
	return err
}

func (s *SQLiteDB) GetMagicLink(token string) (*MagicLink, error) {
	row := s.db.QueryRow(`SELECT token,group_id,email,kind,invite_role,created_at,expires_at,used_at FROM magic_links WHERE token = ?`, token)
	var l MagicLink
	var role sql.NullString
	var created, expires int64
	var used sql.NullInt64
	if err := row.Scan(&l.Token, &l.GroupID, &l.Email, &l.Kind, &role, &created, &expires, &used); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if role.Valid {
		l.InviteRole = Role(role.String)
	}
	l.CreatedAt = time.Unix(created, 0)
	l.ExpiresAt = time.Unix(expires, 0)
	if used.Valid {
		t := time.Unix(used.Int64, 0)
		l.UsedAt = &t
	}
	return &l, nil
}

func (s *SQLiteDB) ConsumeMagicLink(token string) error {
	res, err := s.db.Exec(`UPDATE magic_links SET used_at = ? WHERE token = ?`, time.Now().Unix(), token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// lifecycle helpers
func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
