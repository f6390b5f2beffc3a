package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/fluxnode/internal/testutil"
)

type MongoStoreTestSuite struct {
	suite.Suite
	client *mongo.Client
	store  *MongoStore
}

func TestMongoStoreTestSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	store := NewMongoStore(client, "fluxnode_test")
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	suite.Run(t, &MongoStoreTestSuite{client: client, store: store})
}

func (m *MongoStoreTestSuite) SetupTest() {
	ctx := context.Background()
	_, err := m.store.records.DeleteMany(ctx, map[string]any{})
	m.Require().NoError(err)
	_, err = m.store.traces.DeleteMany(ctx, map[string]any{})
	m.Require().NoError(err)
}

func (m *MongoStoreTestSuite) TestRegistry() {
	testRegistryStore(m.T(), m.store)
}

func (m *MongoStoreTestSuite) TestTraces() {
	testTraceStore(m.T(), m.store)
}
