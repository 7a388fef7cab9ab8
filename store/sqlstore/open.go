package sqlstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config selects the database backing the store.
type Config struct {
	Driver string // sqlite (default), postgres or mysql
	Path   string // SQLite database file; "" or ":memory:" for an in-memory database
	DSN    string // overrides Path; required for postgres and mysql
}

// Open connects to the configured database, migrates the cache table and
// returns a Store that owns the connection.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(db)
	if err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	s.owned = true
	return s, nil
}

func openDB(cfg Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch driver := strings.ToLower(cfg.Driver); driver {
	case "", "sqlite":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return gorm.Open(sqlite.Open(dsn), gcfg)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlstore: postgres requires a dsn")
		}
		return gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlstore: mysql requires a dsn")
		}
		return gorm.Open(mysql.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared", nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path)), nil
}
