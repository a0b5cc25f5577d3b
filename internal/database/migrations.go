package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationRepairDanglingCovers = "2025-03-01_repair_dangling_collection_covers"
	migrationNormalizeEmails      = "2025-03-14_normalize_account_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// dataMigration rewrites existing rows once. apply reports how many rows it touched.
type dataMigration struct {
	name  string
	apply func(*gorm.DB) (int64, error)
}

func registeredMigrations() []dataMigration {
	return []dataMigration{
		{name: migrationRepairDanglingCovers, apply: repairDanglingCovers},
		{name: migrationNormalizeEmails, apply: normalizeAccountEmails},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range registeredMigrations() {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		var rows int64
		err = db.Transaction(func(tx *gorm.DB) error {
			affected, applyErr := migration.apply(tx)
			if applyErr != nil {
				return applyErr
			}
			rows = affected
			return tx.Create(&migrationRecord{
				Name:             migration.name,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied",
				zap.String("migration", migration.name),
				zap.Int64("rows_affected", rows))
		}
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// repairDanglingCovers clears cover URLs that no longer match any photo thumbnail in their collection.
func repairDanglingCovers(tx *gorm.DB) (int64, error) {
	result := tx.Exec(`UPDATE collections SET cover_photo_url = ''
WHERE cover_photo_url <> ''
AND NOT EXISTS (
	SELECT 1 FROM collection_photos
	WHERE collection_photos.collection_id = collections.id
	AND collection_photos.thumbnail_url = collections.cover_photo_url
)`)
	return result.RowsAffected, result.Error
}

// normalizeAccountEmails lowercases stored emails so whitelist and sign-in lookups agree.
// Rows whose normalized form is already taken are left for an operator to merge.
func normalizeAccountEmails(tx *gorm.DB) (int64, error) {
	result := tx.Exec(`UPDATE user_accounts SET email = LOWER(TRIM(email))
WHERE email <> LOWER(TRIM(email))
AND NOT EXISTS (
	SELECT 1 FROM user_accounts AS other
	WHERE other.email = LOWER(TRIM(user_accounts.email))
)`)
	return result.RowsAffected, result.Error
}
