//go:build container
// +build container

// Package testhelpers starts throwaway infrastructure in Docker for integration tests.
//
// Requirements:
//   - Docker daemon running and accessible
//   - Docker images: postgres:16-alpine, redis:7-alpine
package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/user/memories-go/config"
	"github.com/user/memories-go/db"
)

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testhelpers source file")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// StartPostgres runs a migrated Postgres container and returns a pool connected to it.
// The container and pool are released through t.Cleanup.
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "memories",
			"POSTGRES_PASSWORD": "memories",
			"POSTGRES_DB":       "memories",
		},
		// Postgres logs readiness twice: once for the init server, once for the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	cfg := &config.PoolConfig{
		Host:           host,
		Port:           port.Int(),
		User:           "memories",
		Password:       "memories",
		DBName:         "memories",
		MaxSize:        10,
		ConnectTimeout: 30 * time.Second,
	}
	pool, err := db.NewPool(cfg)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.EnableExtensions(pool); err != nil {
		t.Fatalf("failed to enable extensions: %v", err)
	}
	if err := db.RunMigrations(cfg, MigrationsPath(t)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}

// StartRedis runs a Redis container and returns its host:port address.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}
