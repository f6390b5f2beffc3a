package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "fluxnode:test:"

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedisStore(client, testPrefix), mr
}

func TestRedisStore_Registry(t *testing.T) {
	store, _ := newRedisStore(t)
	testRegistryStore(t, store)
}

func TestRedisStore_Traces(t *testing.T) {
	store, _ := newRedisStore(t)
	testTraceStore(t, store)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, sampleRecord("summarize", "sig-1", nil)))

	assert.True(t, mr.Exists(testPrefix+"rec:summarize"))
	members, err := mr.Members(testPrefix + "idx:sig:sig-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"summarize"}, members)

	require.NoError(t, store.DeleteRecord(ctx, "summarize"))
	assert.False(t, mr.Exists(testPrefix+"rec:summarize"))
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "fluxnode:rec:x", NewRedisStore(nil, "").keyRecord("x"))
}
