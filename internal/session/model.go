package session

import (
	"time"

	"github.com/openshelf/librarium/internal/users"
)

// Snapshot is the denormalized copy of public user fields taken at
// session-issue time. Authorization checks read it instead of making a
// repository round trip on every request.
type Snapshot struct {
	UserID       string         `gorm:"column:user_id;size:36;not null;index" json:"id"`
	Username     string         `gorm:"column:username;size:190;not null" json:"username"`
	Email        string         `gorm:"column:email;size:320;not null" json:"email"`
	Role         users.Role     `gorm:"column:role;size:16;not null" json:"role"`
	AuthProvider users.Provider `gorm:"column:auth_provider;size:16;not null" json:"authProvider"`
}

// SnapshotOf captures the session snapshot for a user record.
func SnapshotOf(user *users.User) Snapshot {
	return Snapshot{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		AuthProvider: user.AuthProvider,
	}
}

// Session is a row in the sessions table. The token is the opaque cookie
// value; the user record outlives any session referencing it.
type Session struct {
	Token     string    `gorm:"column:token;primaryKey;size:128;not null"`
	Snapshot  Snapshot  `gorm:"embedded"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing session records.
func (Session) TableName() string {
	return "sessions"
}

// ExpiredAt reports whether the session is past its expiry at the given
// instant.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsAdmin reports whether the snapshot carries the admin role.
func (s Session) IsAdmin() bool {
	return s.Snapshot.Role == users.RoleAdmin
}
