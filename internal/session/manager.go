package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/users"
)

// DefaultTTL is the fixed session lifetime applied when none is configured.
const DefaultTTL = 24 * time.Hour

const tokenEntropyBytes = 32

var (
	errMissingStore = errors.New("session: store is required")
	errMissingUser  = errors.New("session: user record is required")
)

// ManagerConfig describes the dependencies of the session manager.
type ManagerConfig struct {
	Store  Store
	TTL    time.Duration
	Clock  func() time.Time
	Logger *zap.Logger
}

// Manager issues, resolves and destroys authenticated sessions bound to a
// user id plus a snapshot of public profile fields.
type Manager struct {
	store  Store
	ttl    time.Duration
	clock  func() time.Time
	logger *zap.Logger
}

// NewManager constructs a Manager with sane defaults.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  cfg.Store,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}, nil
}

// Issue stores a new session for the user and returns its opaque token.
func (m *Manager) Issue(ctx context.Context, user *users.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errMissingUser
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	now := m.clock().UTC()
	record := &Session{
		Token:     token,
		Snapshot:  SnapshotOf(user),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	return token, nil
}

// Resolve returns the session for the token, or nil for missing, malformed
// or expired tokens. Expired records are evicted on the way out.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	record, err := m.store.Find(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	if record.ExpiredAt(m.clock().UTC()) {
		if err := m.store.Delete(ctx, token); err != nil {
			m.logger.Warn("expired session eviction failed", zap.Error(err))
		}
		return nil, nil
	}
	return record, nil
}

// Destroy removes the session for the token. Destroying an absent token is
// a no-op.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// RefreshSnapshot rewrites the snapshot cached on the user's live sessions
// after a profile-affecting update.
func (m *Manager) RefreshSnapshot(ctx context.Context, user *users.User) error {
	if user == nil || user.ID == "" {
		return errMissingUser
	}
	if err := m.store.UpdateSnapshot(ctx, user.ID, SnapshotOf(user)); err != nil {
		return fmt.Errorf("refreshing session snapshot: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
