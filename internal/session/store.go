package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("session: database handle is required")

// Store abstracts session persistence. The production store shares the
// application database; tests may substitute their own.
type Store interface {
	Insert(ctx context.Context, record *Session) error
	Find(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	UpdateSnapshot(ctx context.Context, userID string, snapshot Snapshot) error
}

// GormStore persists sessions in a gorm-managed table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a Store over the provided database handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

// Insert persists a new session record.
func (s *GormStore) Insert(ctx context.Context, record *Session) error {
	return s.db.WithContext(ctx).Create(record).Error
}

// Find returns the session with the given token, or nil when absent.
func (s *GormStore) Find(ctx context.Context, token string) (*Session, error) {
	var record Session
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes the session with the given token. Deleting an absent
// token is not an error.
func (s *GormStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error
}

// UpdateSnapshot rewrites the cached user snapshot on every live session
// belonging to the user.
func (s *GormStore) UpdateSnapshot(ctx context.Context, userID string, snapshot Snapshot) error {
	return s.db.WithContext(ctx).
		Model(&Session{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"username":      snapshot.Username,
			"email":         snapshot.Email,
			"role":          snapshot.Role,
			"auth_provider": snapshot.AuthProvider,
		}).Error
}

// DeleteExpired removes sessions whose expiry precedes the given instant.
// The cleanup is opportunistic; Resolve already treats expired records as
// absent.
func (s *GormStore) DeleteExpired(ctx context.Context, before time.Time) error {
	return s.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&Session{}).Error
}
