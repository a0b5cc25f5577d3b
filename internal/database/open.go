package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database backend.
type Config struct {
	Driver string
	// Path is the SQLite file; DSN is the Postgres connection string.
	Path string
	DSN  string
}

// Open establishes a connection for the configured driver and performs schema migrations.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	var dialector gorm.Dialector
	var target string
	switch driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		dialector = sqlite.Open(cfg.Path)
		target = cfg.Path
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		dialector = postgres.Open(cfg.DSN)
		target = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driver), zap.String("target", target))
	}

	return db, nil
}

// OpenSQLite is shorthand for Open with the SQLite driver.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	return Open(Config{Driver: DriverSQLite, Path: path}, logger)
}

// Migrate creates or updates every table and runs pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.Account{},
		&gallery.Image{},
		&collections.Collection{},
		&collections.CollectionPhoto{},
		&notes.Note{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
