package database

import (
	"fmt"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/blog"
	"github.com/binaryblob/binaryblob/internal/config"
	"github.com/binaryblob/binaryblob/internal/projects"
	"github.com/binaryblob/binaryblob/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Options selects the backing store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// OptionsFromConfig extracts the database settings of an application config.
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, DSN: cfg.DatabaseDSN}
}

// Open connects to SQLite or PostgreSQL, migrates the schema and applies pending
// data migrations.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch options.Driver {
	case config.DriverSQLite, "":
		db, err = openSQLite(options.Path)
	case config.DriverPostgres:
		db, err = openPostgres(options.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", db.Dialector.Name()))
	}
	return db, nil
}

// Models lists every persisted type in dependency order.
func Models() []any {
	models := []any{&users.User{}, &users.Identity{}, &audit.Event{}}
	models = append(models, projects.Models()...)
	models = append(models, blog.Models()...)
	return append(models, &migrationRecord{})
}

func openSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}
