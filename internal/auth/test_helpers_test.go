package auth

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/openshelf/librarium/internal/session"
	"github.com/openshelf/librarium/internal/users"
)

var testDatabaseSequence atomic.Int64

type authFixture struct {
	repo     *users.Repository
	sessions *session.Manager
	service  *Service
	resolver *Resolver
	clockNow *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_test_%d?mode=memory&cache=shared", testDatabaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &session.Session{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clockNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixture := &authFixture{clockNow: &clockNow}
	clock := func() time.Time { return *fixture.clockNow }

	fixture.repo, err = users.NewRepository(users.RepositoryConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	store, err := session.NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	fixture.sessions, err = session.NewManager(session.ManagerConfig{
		Store: store,
		TTL:   24 * time.Hour,
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	fixture.service, err = NewService(ServiceConfig{
		Repository: fixture.repo,
		Sessions:   fixture.sessions,
		Hasher:     NewHasher(4),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	fixture.resolver, err = NewResolver(ResolverConfig{
		Repository: fixture.repo,
		Sessions:   fixture.sessions,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	return fixture
}

func (f *authFixture) advanceClock(d time.Duration) {
	*f.clockNow = f.clockNow.Add(d)
}
