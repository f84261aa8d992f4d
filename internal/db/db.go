// Package db opens the job store connection: MySQL in production, SQLite
// (pure Go driver) for local runs and tests.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Options struct {
	Driver  string // mysql | sqlite
	DSN     string
	Tracing bool
	Debug   bool

	// Logger receives gorm's query log; the zero value discards it.
	Logger zerolog.Logger
}

func Connect(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	case "sqlite":
		// fail early on a missing parent directory instead of an opaque sqlite error
		if dir := filepath.Dir(opts.DSN); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}

	level := logger.Warn
	if opts.Debug {
		level = logger.Info
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(opts.Logger, level)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	if opts.Driver == "sqlite" {
		gdb.Exec("PRAGMA journal_mode=WAL;")
		gdb.Exec("PRAGMA busy_timeout=5000;")
	}

	if opts.Tracing {
		if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// Close releases the underlying pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
