package database

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/openshelf/librarium/internal/users"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "librarium.db"), nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return db
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	db := openTestDatabase(t)

	for _, table := range []string{"users", "sessions", "authors", "books", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %q to exist", table)
		}
	}
}

func TestOpenSQLiteRecordsAppliedMigrations(t *testing.T) {
	db := openTestDatabase(t)

	var count int64
	if err := db.Model(&migrationRecord{}).
		Where("name = ?", migrationBackfillAuthProvider).
		Count(&count).Error; err != nil {
		t.Fatalf("failed to query migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one migration record, got %d", count)
	}
}

func TestOpenSQLiteIsIdempotentOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librarium.db")
	if _, err := OpenSQLite(path, nil); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := OpenSQLite(path, nil); err != nil {
		t.Fatalf("second open failed: %v", err)
	}
}

func TestBackfillAuthProviderStampsLegacyRows(t *testing.T) {
	db := openTestDatabase(t)

	inserts := []struct {
		id           string
		username     string
		email        string
		passwordHash any
		externalID   any
	}{
		{"user-local", "local", "local@example.com", "digest", nil},
		{"user-federated", "federated", "federated@example.com", nil, "gh-42"},
	}
	for _, row := range inserts {
		if err := db.Exec(
			"INSERT INTO users (id, username, email, password_hash, external_id, auth_provider, role, created_at, last_login) "+
				"VALUES (?, ?, ?, ?, ?, '', 'user', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
			row.id, row.username, row.email, row.passwordHash, row.externalID,
		).Error; err != nil {
			t.Fatalf("failed to insert legacy row %s: %v", row.id, err)
		}
	}

	if err := backfillAuthProvider(db); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	assertProvider := func(id string, expected users.Provider) {
		t.Helper()
		var user users.User
		if err := db.Where("id = ?", id).Take(&user).Error; err != nil {
			t.Fatalf("failed to load user %s: %v", id, err)
		}
		if user.AuthProvider != expected {
			t.Fatalf("expected provider %q for %s, got %q", expected, id, user.AuthProvider)
		}
	}
	assertProvider("user-local", users.ProviderLocal)
	assertProvider("user-federated", users.ProviderGitHub)
}
