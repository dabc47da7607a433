// Package database provides PostgreSQL connection management.
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pingTimeout bounds the startup connectivity check so a wedged database
// fails fast instead of hanging boot.
const pingTimeout = 5 * time.Second

// Config holds database connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads the DB_* environment variables, falling back to local
// development defaults.
func ConfigFromEnv() Config {
	port, _ := strconv.Atoi(envOr("DB_PORT", "5432"))
	maxOpen, _ := strconv.Atoi(envOr("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(envOr("DB_MAX_IDLE_CONNS", "5"))
	lifetime, _ := time.ParseDuration(envOr("DB_CONN_MAX_LIFETIME", "5m"))

	return Config{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            port,
		User:            envOr("DB_USER", "requestdesk"),
		Password:        envOr("DB_PASSWORD", "localdev"),
		Database:        envOr("DB_NAME", "requestdesk"),
		SSLMode:         envOr("DB_SSL_MODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
	}
}

// ConnectionString returns the PostgreSQL connection URL.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect opens a pgx pool and verifies the database is reachable before
// returning it.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // bounded by config validation
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // bounded by config validation
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
