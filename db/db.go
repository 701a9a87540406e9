// Package db provides database connectivity and migration functionality for the memories application.
// It handles establishing the connection pool, enabling required PostgreSQL extensions,
// and running database migrations. The pool it returns is handed to the Postgres
// backends of the `users` and `posts` packages.
package db

import (
	"context"
	"fmt"
	"net/url"
	// `time` is used for setting timeouts and connection pool configurations.
	"time"

	// `golang-migrate` is a popular library for database migrations in Go.
	"github.com/golang-migrate/migrate/v4"
	// The postgres database driver registers the "postgres://" scheme with migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	// The file source driver reads `file://` migration directories.
	_ "github.com/golang-migrate/migrate/v4/source/file"
	// `pgxpool` is part of the `jackc/pgx` suite, providing a robust connection pool for PostgreSQL.
	"github.com/jackc/pgx/v5/pgxpool"
	// `lib/pq` backs migrate's postgres driver through database/sql.
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/config"
)

// requiredExtensions are enabled before migrations run. pg_trgm backs the
// trigram index used by case-insensitive title search.
var requiredExtensions = []string{"pg_trgm"}

// NewPool establishes the application connection pool.
// The initial connect and ping are bounded by cfg.ConnectTimeout; after that,
// queries wait on the request context only.
func NewPool(cfg *config.PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error parsing DSN for database %s", cfg.DBName), err)
	}

	poolConfig.MaxConns = int32(cfg.MaxSize)
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error creating pgxpool for database %s", cfg.DBName), err)
	}

	// Verify the connection by pinging
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error connecting to the database %s", cfg.DBName), err)
	}

	logrus.WithFields(logrus.Fields{
		"host":      cfg.Host,
		"database":  cfg.DBName,
		"max_conns": cfg.MaxSize,
	}).Info("database pool ready")
	return pool, nil
}

// DSN constructs a connection string from PoolConfig. Both pgx and golang-migrate's
// postgres driver accept this URL form.
func DSN(cfg *config.PoolConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// EnableExtensions enables the PostgreSQL extensions the schema depends on.
func EnableExtensions(pool *pgxpool.Pool) error {
	for _, ext := range requiredExtensions {
		// `CREATE EXTENSION IF NOT EXISTS` is idempotent.
		query := fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s;", ext)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := pool.Exec(ctx, query)
		cancel()
		if err != nil {
			return apperror.NewDatabaseError(fmt.Sprintf("failed to create extension %s", ext), err)
		}
	}
	return nil
}

// RunMigrations applies any pending migrations from migrationsPath.
// Files follow golang-migrate naming: {version}_{description}.up.sql / .down.sql.
func RunMigrations(cfg *config.PoolConfig, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, DSN(cfg))
	if err != nil {
		return apperror.NewDatabaseError("failed to create migrator", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logrus.WithFields(logrus.Fields{
				"source_error":   srcErr,
				"database_error": dbErr,
			}).Warn("error closing migrator")
		}
	}()

	// `migrate.ErrNoChange` is returned if there are no new migrations to apply, which is not an actual error.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return apperror.NewDatabaseError("failed to run migrations", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logrus.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	}
	return nil
}
