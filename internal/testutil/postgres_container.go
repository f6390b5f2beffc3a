package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgImage    = "postgres:16"
	pgUser     = "fluxnode"
	pgPassword = "fluxnode"
	pgDatabase = "fluxnode_test"
)

func pgDSN(hostPort string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, hostPort, pgDatabase)
}

var postgres = &sharedContainer{
	name: "postgres",
	dsn:  pgDSN,
	run: func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(ctx, pgImage,
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			}),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					// The log line appears once during init too; only a query proves readiness.
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return pgDSN(host + ":" + port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
		)
	},
}

// GetPostgresEndpoint returns a pgx DSN for a shared Postgres container.
func GetPostgresEndpoint(t *testing.T) string {
	t.Helper()
	return postgres.DSN(t)
}
