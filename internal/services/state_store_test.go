package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	nonce := uuid.NewString()

	ok, err := store.Consume(ctx, nonce)
	require.NoError(t, err)
	assert.False(t, ok, "unknown nonce must not be accepted")

	require.NoError(t, store.Remember(ctx, nonce, time.Minute))

	ok, err = store.Consume(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, nonce)
	require.NoError(t, err)
	assert.False(t, ok, "replayed nonce must be rejected")
}

func TestMemoryStateStore(t *testing.T) {
	testStateStoreContract(t, NewMemoryStateStore())
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Remember(context.Background(), "n1", time.Minute))
	now = now.Add(2 * time.Minute)

	ok, err := store.Consume(context.Background(), "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStateStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	testStateStoreContract(t, NewRedisStateStore(client))
}

func TestPendingAuthorizations(t *testing.T) {
	pending := NewPendingAuthorizations()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	pending.now = func() time.Time { return now }

	pending.Put("n1", PendingAuthorization{ClientSecret: "s1", AccountID: "ctrader_main"}, time.Minute)
	pending.Put("n2", PendingAuthorization{ClientSecret: "s2"}, time.Minute)

	auth, ok := pending.Take("n1")
	require.True(t, ok)
	assert.Equal(t, "s1", auth.ClientSecret)
	assert.Equal(t, "ctrader_main", auth.AccountID)

	_, ok = pending.Take("n1")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = pending.Take("n2")
	assert.False(t, ok)
}
