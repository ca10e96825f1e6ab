package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openshelf/librarium/internal/users"
)

const migrationBackfillAuthProvider = "2026-06-12_backfill_auth_provider"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillAuthProvider, apply: backfillAuthProvider},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillAuthProvider stamps the provider column on user rows created
// before it existed: password-bearing rows are local, the rest federated.
func backfillAuthProvider(db *gorm.DB) error {
	if err := db.Model(&users.User{}).
		Where("(auth_provider IS NULL OR auth_provider = '') AND password_hash IS NOT NULL").
		Update("auth_provider", users.ProviderLocal).Error; err != nil {
		return err
	}
	return db.Model(&users.User{}).
		Where("(auth_provider IS NULL OR auth_provider = '') AND external_id IS NOT NULL").
		Update("auth_provider", users.ProviderGitHub).Error
}
