// Package db opens the database, applies the schema and seeds reference data.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/diewo77/vtc-exchange/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

// Open connects to the configured database. Postgres connections are retried
// to give the server time to start.
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}

	switch cfg.Driver {
	case "sqlite":
		log.Info("opening sqlite database", "path", cfg.SQLitePath)
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
	case "postgres", "":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	log.Info("connecting to database", "host", cfg.Host, "port", cfg.Port, "dbname", cfg.DBName, "user", cfg.User)
	var (
		conn *gorm.DB
		err  error
	)
	for i := 0; i < connectAttempts; i++ {
		conn, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err == nil {
			break
		}
		log.Warn("retrying database connection", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if err := conn.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return conn, nil
}
