package main

import (
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret-0123456789abcdef")

// captureMailer records outbound email instead of sending it.
type captureMailer struct {
	sent []Email
}

func (m *captureMailer) Send(email Email) error {
	m.sent = append(m.sent, email)
	return nil
}

func newTestApp() (*App, *MemDB, *captureMailer) {
	db := NewMemoryDB()
	mailer := &captureMailer{}
	app := &App{
		DB:          db,
		secret:      testSecret,
		logger:      zap.NewNop(),
		mailer:      mailer,
		linkLimiter: newEmailLimiter(1000),
		frontendURL: "http://localhost:5173",
		siteName:    "Album",
	}
	return app, db, mailer
}

// seedGroup creates an owner, a group, and the owner's admin
// membership.
func seedGroup(db *MemDB, ownerName, ownerEmail, groupName string) (*User, *Group) {
	owner, _ := db.CreateUser(ownerName, ownerEmail)
	group, _ := db.CreateGroup(groupName, owner.ID)
	_ = db.CreateMembership(owner.ID, group.ID, RoleAdmin)
	return owner, group
}
