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

// ProviderIdentity is the verified identity handed back by the OAuth
// provider after the code exchange. Email may be empty; GitHub users can
// hide it.
type ProviderIdentity struct {
	ExternalID  string
	Handle      string
	DisplayName string
	ProfileURL  string
	AvatarURL   string
	Email       string
}

// Outcome tags which branch of the resolution procedure produced the user.
type Outcome string

const (
	// OutcomeReturning means the external id matched an existing record.
	OutcomeReturning Outcome = "returning"
	// OutcomeLinked means the identity was merged onto a local account
	// sharing its email.
	OutcomeLinked Outcome = "linked"
	// OutcomeCreated means a new federated account was created.
	OutcomeCreated Outcome = "created"
)

// Resolution is the result of running the find-or-link-or-create procedure.
type Resolution struct {
	User    *users.User
	Outcome Outcome
	Token   string
}

// ResolverConfig describes the dependencies of the identity resolver.
type ResolverConfig struct {
	Repository *users.Repository
	Sessions   SessionWriter
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Resolver unifies federated provider identities with stored user records.
// The three branches run in a fixed order: exact external match, email
// linking, creation. First match wins.
type Resolver struct {
	repo     *users.Repository
	sessions SessionWriter
	clock    func() time.Time
	logger   *zap.Logger
}

// NewResolver constructs the federated identity resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
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
	return &Resolver{
		repo:     cfg.Repository,
		sessions: cfg.Sessions,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Resolve runs exactly one branch of the decision procedure and issues a
// session for the resolved user.
func (r *Resolver) Resolve(ctx context.Context, identity ProviderIdentity) (Resolution, error) {
	externalID := strings.TrimSpace(identity.ExternalID)
	if externalID == "" {
		return Resolution{}, fmt.Errorf("%w: provider identity missing subject id", ErrValidation)
	}
	identity.ExternalID = externalID

	resolution, err := r.resolveUser(ctx, identity)
	if err != nil {
		return Resolution{}, err
	}

	token, err := r.sessions.Issue(ctx, resolution.User)
	if err != nil {
		return Resolution{}, fmt.Errorf("issuing session: %w", err)
	}
	resolution.Token = token

	r.logger.Info("federated identity resolved",
		zap.String("user_id", resolution.User.ID),
		zap.String("outcome", string(resolution.Outcome)),
	)
	return resolution, nil
}

func (r *Resolver) resolveUser(ctx context.Context, identity ProviderIdentity) (Resolution, error) {
	// Branch 1: the provider subject already maps to a record.
	existing, err := r.repo.FindByExternalID(ctx, identity.ExternalID)
	if err == nil {
		return r.touchReturning(ctx, existing, identity)
	}
	if !errors.Is(err, users.ErrNotFound) {
		return Resolution{}, err
	}

	// Branch 2: merge onto a local account sharing the provider email.
	if email := strings.TrimSpace(identity.Email); email != "" {
		matched, err := r.repo.FindByEmail(ctx, email)
		if err == nil {
			return r.linkIdentity(ctx, matched, identity)
		}
		if !errors.Is(err, users.ErrNotFound) {
			return Resolution{}, err
		}
	}

	// Branch 3: first login, create a federated account.
	return r.createUser(ctx, identity)
}

func (r *Resolver) touchReturning(ctx context.Context, user *users.User, identity ProviderIdentity) (Resolution, error) {
	now := r.clock().UTC()
	fields := profileFields(identity)
	fields[users.ColumnLastLogin] = now
	if err := r.repo.Patch(ctx, user.ID, fields); err != nil {
		return Resolution{}, fmt.Errorf("refreshing profile: %w", err)
	}

	user.Profile = identity.profile()
	user.LastLogin = now

	// The live session caches public user fields; keep it current so the
	// user is not forced to log in again to observe the refresh.
	if err := r.sessions.RefreshSnapshot(ctx, user); err != nil {
		r.logger.Warn("session snapshot refresh failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return Resolution{User: user, Outcome: OutcomeReturning}, nil
}

func (r *Resolver) linkIdentity(ctx context.Context, user *users.User, identity ProviderIdentity) (Resolution, error) {
	if user.HasExternalID() {
		if *user.ExternalID == identity.ExternalID {
			// The external lookup should have caught this; treat it as a
			// returning login rather than failing.
			return r.touchReturning(ctx, user, identity)
		}
		return Resolution{}, fmt.Errorf(
			"%w: email %s is bound to a different external identity", ErrIdentityConflict, user.Email)
	}

	now := r.clock().UTC()
	fields := profileFields(identity)
	fields[users.ColumnExternalID] = identity.ExternalID
	fields[users.ColumnLastLogin] = now
	if err := r.repo.Patch(ctx, user.ID, fields); err != nil {
		if errors.Is(err, users.ErrDuplicate) {
			return Resolution{}, fmt.Errorf("%w: external identity already attached elsewhere", ErrIdentityConflict)
		}
		return Resolution{}, fmt.Errorf("linking identity: %w", err)
	}

	externalID := identity.ExternalID
	user.ExternalID = &externalID
	user.Profile = identity.profile()
	user.LastLogin = now

	if err := r.sessions.RefreshSnapshot(ctx, user); err != nil {
		r.logger.Warn("session snapshot refresh failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return Resolution{User: user, Outcome: OutcomeLinked}, nil
}

func (r *Resolver) createUser(ctx context.Context, identity ProviderIdentity) (Resolution, error) {
	username := strings.TrimSpace(identity.Handle)
	if username == "" {
		username = strings.TrimSpace(identity.DisplayName)
	}
	if username == "" {
		return Resolution{}, fmt.Errorf("%w: provider identity missing handle and display name", ErrValidation)
	}

	email := strings.TrimSpace(identity.Email)
	if email == "" {
		email = fmt.Sprintf("%s@github.user", username)
	}

	now := r.clock().UTC()
	externalID := identity.ExternalID
	record := &users.User{
		Username:     username,
		Email:        email,
		Role:         users.RoleUser,
		AuthProvider: users.ProviderGitHub,
		ExternalID:   &externalID,
		Profile:      identity.profile(),
		CreatedAt:    now,
		LastLogin:    now,
	}

	stored, err := r.repo.Insert(ctx, record)
	if err == nil {
		return Resolution{User: stored, Outcome: OutcomeCreated}, nil
	}
	if !errors.Is(err, users.ErrDuplicate) {
		return Resolution{}, err
	}

	// Concurrent first logins for the same subject race into two inserts;
	// the unique index rejects the loser, which retries as a lookup.
	existing, lookupErr := r.repo.FindByExternalID(ctx, identity.ExternalID)
	if lookupErr == nil {
		return r.touchReturning(ctx, existing, identity)
	}
	if !errors.Is(lookupErr, users.ErrNotFound) {
		return Resolution{}, lookupErr
	}

	// The collision was on username or the synthesized email, not on the
	// external id. Nothing to merge with, so surface it.
	return Resolution{}, fmt.Errorf("%w: %v", ErrConflict, err)
}

func (i ProviderIdentity) profile() users.Profile {
	return users.Profile{
		DisplayName: strings.TrimSpace(i.DisplayName),
		Handle:      strings.TrimSpace(i.Handle),
		ProfileURL:  strings.TrimSpace(i.ProfileURL),
		AvatarURL:   strings.TrimSpace(i.AvatarURL),
	}
}

func profileFields(identity ProviderIdentity) map[string]any {
	profile := identity.profile()
	return map[string]any{
		users.ColumnProfileDisplayName: profile.DisplayName,
		users.ColumnProfileHandle:      profile.Handle,
		users.ColumnProfileURL:         profile.ProfileURL,
		users.ColumnProfileAvatarURL:   profile.AvatarURL,
	}
}
