package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// openDB opens a database connection for the configured dialect. It also
// configures logging based on whether we're in development or in production.
func openDB(dc DatabaseConfig, isProd bool) (*gorm.DB, error) {
	connectionInfo := dc.ConnectionInfo()
	if connectionInfo == "" {
		return nil, fmt.Errorf("connectionInfo required")
	}

	logLevel := logger.Info
	if isProd {
		logLevel = logger.Silent
	}
	cfg := &gorm.Config{
		Logger: logger.New(gormLogWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var dialector gorm.Dialector
	switch dc.Dialect {
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: connectionInfo})
	default:
		dialector = postgres.Open(connectionInfo)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("err opening gorm %s connection: %w", dc.Dialect, err)
	}
	if dc.Dialect == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// gormLogWriter hands gorm's log lines to zerolog.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	log.Debug().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
