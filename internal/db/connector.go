// Package db opens GORM connections for the supported database backends.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options control connection behavior.
type Options struct {
	// MaxOpenConns caps the connection pool. Zero means the driver default.
	MaxOpenConns int
	// Verbose enables SQL statement logging.
	Verbose bool
}

// Open connects to the database named by dbType (sqlite, mysql, or postgres)
// using the driver connection string dsn.
func Open(dbType, dsn string, opts Options) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch dbType {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q (must be sqlite, mysql, or postgres)", dbType)
	}

	logLevel := logger.Silent
	if opts.Verbose {
		logLevel = logger.Info
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", dbType, err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, fmt.Errorf("access underlying connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return gormDB, nil
}
