package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates no user record matched the lookup.
	ErrNotFound = errors.New("users: record not found")
	// ErrDuplicate indicates an insert collided with one of the unique
	// indexes (email, username or external id).
	ErrDuplicate = errors.New("users: duplicate value")

	errMissingDatabase = errors.New("users: database handle is required")
	errMissingRecordID = errors.New("users: record id is required")
)

// Column names accepted by Patch. Callers build field maps with these so
// updates stay aligned with the schema.
const (
	ColumnLastLogin          = "last_login"
	ColumnExternalID         = "external_id"
	ColumnProfileDisplayName = "profile_display_name"
	ColumnProfileHandle      = "profile_handle"
	ColumnProfileURL         = "profile_url"
	ColumnProfileAvatarURL   = "profile_avatar_url"
)

// Repository provides typed access to the users table.
type Repository struct {
	db    *gorm.DB
	clock func() time.Time
}

// RepositoryConfig describes the dependencies for a users Repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// NewRepository constructs a Repository over the provided database handle.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Repository{db: cfg.Database, clock: clock}, nil
}

// FindByID returns the user with the given internal identifier.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail returns the user owning the given email regardless of provider.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "email = ?", normalizeEmail(email))
}

// FindLocalByEmail returns the user owning the given email scoped to
// locally-registered accounts. Password login resolves users through this
// lookup so a federated-only account sharing the email stays unreachable.
func (r *Repository) FindLocalByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "email = ? AND auth_provider = ?", normalizeEmail(email), ProviderLocal)
}

// FindByUsername returns the user owning the given username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, "username = ?", strings.TrimSpace(username))
}

// FindByExternalID returns the user carrying the given provider subject id.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return r.findOne(ctx, "external_id = ?", externalID)
}

// Insert persists a new user record, assigning its identifier and creation
// time. Unique-index violations surface as ErrDuplicate so the store stays
// the sole arbiter of check-then-insert races.
func (r *Repository) Insert(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("users: insert requires a record")
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("users: generating record id: %w", err)
	}

	stored := *user
	stored.ID = identifier.String()
	stored.Email = normalizeEmail(stored.Email)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.clock().UTC()
	}

	if err := r.db.WithContext(ctx).Create(&stored).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}

	return &stored, nil
}

// Patch applies a partial update to the user with the given identifier.
// It returns ErrNotFound when no row matched.
func (r *Repository) Patch(ctx context.Context, id string, fields map[string]any) error {
	if strings.TrimSpace(id) == "" {
		return errMissingRecordID
	}
	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return fmt.Errorf("%w: %v", ErrDuplicate, result.Error)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where(query, args...).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isDuplicateKey recognises unique-index violations from the sqlite driver
// both through gorm's translated error and the raw constraint message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
