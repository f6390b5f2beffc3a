package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var mongo = &sharedContainer{
	name: "mongo",
	dsn:  func(hostPort string) string { return "mongodb://" + hostPort },
	run: func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("mongod startup complete"),
			),
		)
	},
}

// GetMongoURI returns a connection URI for a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return mongo.DSN(t)
}
