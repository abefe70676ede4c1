package main

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func (p *PostgresDB) CreateUser(name, email string) (*User, error) {
	u := &User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now()}
	_, err := p.db.Exec(`INSERT INTO users(id,name,email,created_at) VALUES($1,$2,$3,$4)`,
		u.ID, u.Name, u.Email, u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return scanPGUser(p.db.QueryRow(`SELECT id,name,email,created_at FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByID(id string) (*User, error) {
	return scanPGUser(p.db.QueryRow(`SELECT id,name,email,created_at FROM users WHERE id = $1`, id))
}

func scanPGUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) CreateGroup(name, ownerID string) (*Group, error) {
	g := &Group{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	_, err := p.db.Exec(`INSERT INTO groups(id,name,owner_id,created_at) VALUES($1,$2,$3,$4)`,
		g.ID, g.Name, g.OwnerID, g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (p *PostgresDB) GetGroup(id string) (*Group, error) {
	row := p.db.QueryRow(`SELECT id,name,owner_id,created_at FROM groups WHERE id = $1`, id)
	var g Group
	if err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (p *PostgresDB) DeleteGroup(id string) error {
	if _, err := p.db.Exec(`DELETE FROM memberships WHERE group_id = $1`, id); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM groups WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) GetMembership(userID, groupID string) (*Membership, error) {
	row := p.db.QueryRow(`SELECT user_id,group_id,role,joined_at FROM memberships WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	var m Membership
	if err := row.Scan(&m.UserID, &m.GroupID, &m.Role, &m.JoinedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (p *PostgresDB) CreateMembership(userID, groupID string, role Role) error {
	_, err := p.db.Exec(`INSERT INTO memberships(user_id,group_id,role,joined_at) VALUES($1,$2,$3,$4)
		ON CONFLICT (user_id,group_id) DO NOTHING`, userID, groupID, role, time.Now())
	return err
}

func (p *PostgresDB) guardOwner(userID, groupID string) error {
	g, err := p.GetGroup(groupID)
	if err != nil {
		return err
	}
	if g != nil && g.OwnerID == userID {
		return ErrIsOwner
	}
	return nil
}

func (p *PostgresDB) UpdateMembershipRole(userID, groupID string, role Role) error {
	if err := p.guardOwner(userID, groupID); err != nil {
		return err
	}
	res, err := p.db.Exec(`UPDATE memberships SET role = $1 WHERE user_id = $2 AND group_id = $3`, role, userID, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeleteMembership(userID, groupID string) error {
	if err := p.guardOwner(userID, groupID); err != nil {
		return err
	}
	res, err := p.db.Exec(`DELETE FROM memberships WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) ListMembers(groupID string) ([]*Membership, error) {
	rows, err := p.db.Query(`SELECT user_id,group_id,role,joined_at FROM memberships WHERE group_id = $1 ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *PostgresDB) ListGroupsForUser(userID string) ([]GroupSummary, error) {
	rows, err := p.db.Query(`SELECT g.id, g.name FROM groups g JOIN memberships m ON m.group_id = g.id WHERE m.user_id = $1 ORDER BY g.name`, userID)
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

func (p *PostgresDB) CreateMagicLink(link *MagicLink) error {
	var role sql.NullString
	if link.InviteRole != "" {
		role = sql.NullString{String: string(link.InviteRole), Valid: true}
	}
	_, err := p.db.Exec(`INSERT INTO magic_links(token,group_id,email,kind,invite_role,created_at,expires_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		link.Token, link.GroupID, link.Email, link.Kind, role, link.CreatedAt, link.ExpiresAt)
	return err
}

func (p *PostgresDB) GetMagicLink(token string) (*MagicLink, error) {
	row := p.db.QueryRow(`SELECT token,group_id,email,kind,invite_role,created_at,expires_at,used_at FROM magic_links WHERE token = $1`, token)
	var l MagicLink
	var role sql.NullString
	var used sql.NullTime
	if err := row.Scan(&l.Token, &l.GroupID, &l.Email, &l.Kind, &role, &l.CreatedAt, &l.ExpiresAt, &used); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if role.Valid {
		l.InviteRole = Role(role.String)
	}
	if used.Valid {
		t := used.Time
		l.UsedAt = &t
	}
	return &l, nil
}

func (p *PostgresDB) ConsumeMagicLink(token string) error {
	res, err := p.db.Exec(`UPDATE magic_links SET used_at = $1 WHERE token = $2`, time.Now(), token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// lifecycle helpers
func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
