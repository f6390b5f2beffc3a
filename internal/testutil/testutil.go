// Package testutil starts throwaway database containers for integration
// tests. Tests using it are skipped with -short or when Docker is missing.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const startTimeout = 3 * time.Minute

// sharedContainer is started at most once per test binary. Every test that
// asks for it gets the same DSN; the testcontainers reaper removes it when
// the process exits.
type sharedContainer struct {
	name string
	run  func(ctx context.Context) (testcontainers.Container, error)
	// dsn turns the container's host:port endpoint into a connection string.
	dsn func(endpoint string) string

	once     sync.Once
	endpoint string
	err      error
}

// DSN starts the container on first use and returns its connection string.
// It skips t when the container cannot be started.
func (c *sharedContainer) DSN(t *testing.T) string {
	t.Helper()
	skipIfShort(t)

	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		ctr, err := c.run(ctx)
		if err != nil {
			c.err = err
			return
		}
		endpoint, err := ctr.Endpoint(ctx, "")
		if err != nil {
			_ = ctr.Terminate(context.Background())
			c.err = err
			return
		}
		c.endpoint = endpoint
	})

	if c.err != nil {
		t.Skipf("%s container unavailable: %v", c.name, c.err)
	}
	return c.dsn(c.endpoint)
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
}
