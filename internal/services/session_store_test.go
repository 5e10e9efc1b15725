package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	now := day(1)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "sid", testStudent, time.Hour))
	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, testStudent, got)

	// switching role replaces the whole session
	require.NoError(t, store.Put(ctx, "sid", testAdmin, time.Hour))
	got, err = store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, testAdmin, got)

	now = now.Add(2 * time.Hour)
	_, err = store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	require.NoError(t, store.Put(ctx, "other", testStudent, time.Hour))
	assert.NotContains(t, store.sessions, "sid")

	require.NoError(t, store.Delete(ctx, "other"))
	_, err = store.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	client, redisMock := redismock.NewClientMock()
	store := NewRedisSessionStore(client)

	body, _ := json.Marshal(testStudent)
	redisMock.ExpectSet("session:abc", body, time.Hour).SetVal("OK")
	require.NoError(t, store.Put(ctx, "abc", testStudent, time.Hour))

	redisMock.ExpectGet("session:abc").SetVal(string(body))
	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, testStudent, got)

	redisMock.ExpectDel("session:abc").SetVal(1)
	require.NoError(t, store.Delete(ctx, "abc"))

	redisMock.ExpectGet("session:abc").RedisNil()
	got, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, models.Anonymous, got)

	assert.NoError(t, redisMock.ExpectationsWereMet())
}
