package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisTranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTranscriptStore(client), mr
}

func TestRedisTranscriptAppendAndList(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleUser, Body: "Hi"}))
	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleAssistant, Body: "Hello!"}))

	msgs, err := store.List(ctx, "sess-1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Body)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestRedisTranscriptSessionsAreIsolated(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-a", TranscriptMessage{Role: RoleUser, Body: "a"}))
	require.NoError(t, store.Append(ctx, "sess-b", TranscriptMessage{Role: RoleUser, Body: "b"}))

	msgs, err := store.List(ctx, "sess-a", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Body)
}

func TestRedisTranscriptListHonorsLimit(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleUser, Body: fmt.Sprintf("m%d", i)}))
	}

	msgs, err := store.List(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// The newest messages win.
	assert.Equal(t, "m3", msgs[0].Body)
	assert.Equal(t, "m4", msgs[1].Body)
}

func TestRedisTranscriptCapsHistory(t *testing.T) {
	store, _ := newTestRedisStore(t)
	store.maxMessages = 3
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleUser, Body: fmt.Sprintf("m%d", i)}))
	}

	msgs, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m7", msgs[0].Body)
}

func TestRedisTranscriptExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleUser, Body: "Hi"}))

	mr.FastForward(25 * time.Hour)

	msgs, err := store.List(ctx, "sess-1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRedisTranscriptRequiresSessionID(t *testing.T) {
	store, _ := newTestRedisStore(t)

	err := store.Append(context.Background(), "", TranscriptMessage{Role: RoleUser, Body: "Hi"})
	assert.Error(t, err)

	_, err = store.List(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestNilRedisTranscriptStoreIsInert(t *testing.T) {
	var store *RedisTranscriptStore
	assert.NoError(t, store.Append(context.Background(), "sess-1", TranscriptMessage{Body: "x"}))

	msgs, err := store.List(context.Background(), "sess-1", 10)
	assert.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestMemoryTranscriptStore(t *testing.T) {
	store := NewMemoryTranscriptStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleUser, Body: "Hi"}))
	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: RoleAssistant, Body: "Hello!"}))

	msgs, err := store.List(ctx, "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello!", msgs[0].Body)
}
