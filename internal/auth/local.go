package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/users"
)

var (
	errMissingRepository = errors.New("auth: user repository is required")
	errMissingSessions   = errors.New("auth: session writer is required")
)

// SessionWriter is the slice of the session manager the auth flows need:
// issuing a session for an authenticated user and refreshing the snapshot
// cached on the user's live sessions.
type SessionWriter interface {
	Issue(ctx context.Context, user *users.User) (string, error)
	RefreshSnapshot(ctx context.Context, user *users.User) error
}

// ServiceConfig describes the dependencies of the local auth flow.
type ServiceConfig struct {
	Repository *users.Repository
	Sessions   SessionWriter
	Hasher     Hasher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service implements password-based registration and login.
type Service struct {
	repo     *users.Repository
	sessions SessionWriter
	hasher   Hasher
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the local auth flow.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
	}
	if cfg.Sessions == nil {
		return nil, errMissingSessions
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     cfg.Repository,
		sessions: cfg.Sessions,
		hasher:   cfg.Hasher,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Register creates a local account and returns the new user's id. No
// session is issued; the caller logs in separately.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return "", fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return "", fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", err
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return "", fmt.Errorf("%w: username already taken", ErrConflict)
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	record := &users.User{
		Username:     username,
		Email:        email,
		PasswordHash: &digest,
		Role:         users.RoleUser,
		AuthProvider: users.ProviderLocal,
		CreatedAt:    s.clock().UTC(),
	}

	stored, err := s.repo.Insert(ctx, record)
	if err != nil {
		// The unique index is the arbiter of concurrent registrations;
		// the pre-checks above only give the common case a clean error.
		if errors.Is(err, users.ErrDuplicate) {
			return "", fmt.Errorf("%w: email or username already registered", ErrConflict)
		}
		return "", err
	}

	s.logger.Info("user registered",
		zap.String("user_id", stored.ID),
		zap.String("username", stored.Username),
	)
	return stored.ID, nil
}

// Login authenticates a locally-registered account and issues a session.
// Unknown email, federated-only accounts and wrong passwords all collapse
// into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.repo.FindLocalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if user.PasswordHash == nil || !s.hasher.Verify(password, *user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	now := s.clock().UTC()
	if err := s.repo.Patch(ctx, user.ID, map[string]any{users.ColumnLastLogin: now}); err != nil {
		return nil, "", fmt.Errorf("recording login time: %w", err)
	}
	user.LastLogin = now

	token, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("issuing session: %w", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("provider", string(users.ProviderLocal)),
	)
	return user, token, nil
}
