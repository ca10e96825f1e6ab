package users

import (
	"strings"
	"time"
)

// Role enumerates the two authorization levels known to the API.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Provider identifies the authentication origin a user record was created by.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGitHub Provider = "github"
)

// Profile is the denormalized snapshot of public provider profile fields.
// It is refreshed on every federated login and empty for local-only accounts.
type Profile struct {
	DisplayName string `gorm:"column:profile_display_name;size:320"`
	Handle      string `gorm:"column:profile_handle;size:190"`
	ProfileURL  string `gorm:"column:profile_url;size:512"`
	AvatarURL   string `gorm:"column:profile_avatar_url;size:512"`
}

// User is a row in the users table. PasswordHash and ExternalID are
// pointers because their uniqueness only applies when present; a record
// always carries at least one of the two.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash *string   `gorm:"column:password_hash;size:190"`
	Role         Role      `gorm:"column:role;size:16;not null"`
	AuthProvider Provider  `gorm:"column:auth_provider;size:16;not null"`
	ExternalID   *string   `gorm:"column:external_id;size:190;uniqueIndex"`
	Profile      Profile   `gorm:"embedded"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastLogin    time.Time `gorm:"column:last_login"`
}

// TableName exposes the table backing user records.
func (User) TableName() string {
	return "users"
}

// HasExternalID reports whether a federated identity is attached.
func (u User) HasExternalID() bool {
	return u.ExternalID != nil && strings.TrimSpace(*u.ExternalID) != ""
}

// CanAuthenticate reports whether the record satisfies the storage
// invariant that at least one credential origin is present.
func (u User) CanAuthenticate() bool {
	if u.PasswordHash != nil && *u.PasswordHash != "" {
		return true
	}
	return u.HasExternalID()
}
