package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authbridge/core"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "invalid://url")
	require.Error(t, err)
}

func TestRedisCredentialCache_RoundTrip(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewRedisCredentialCache(client)
	ctx := context.Background()

	rec := &core.CredentialRecord{
		Access:     "access-1",
		Refresh:    "refresh-1",
		IssuedAt:   time.Now().UTC().Truncate(time.Second),
		TTLSeconds: 300,
	}
	require.NoError(t, cache.Set(ctx, "u1@example.com", rec, 5*time.Minute))

	got, err := cache.Get(ctx, "u1@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Access, got.Access)
	assert.Equal(t, rec.Refresh, got.Refresh)
	assert.True(t, rec.IssuedAt.Equal(got.IssuedAt))
	assert.Equal(t, int64(300), got.TTLSeconds)

	assert.Equal(t, 5*time.Minute, mr.TTL(credentialPrefix+"u1@example.com"))

	mr.FastForward(6 * time.Minute)
	got, err = cache.Get(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.Nil(t, got, "record must lapse with its TTL")
}

func TestRedisCredentialCache_Miss(t *testing.T) {
	client, _ := setupRedis(t)
	cache := NewRedisCredentialCache(client)

	got, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCredentialCache_CorruptEntry(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewRedisCredentialCache(client)

	require.NoError(t, mr.Set(credentialPrefix+"u1", "{not json"))

	got, err := cache.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(credentialPrefix+"u1"), "corrupt entry should be dropped")
}

func TestRedisCredentialCache_Delete(t *testing.T) {
	client, _ := setupRedis(t)
	cache := NewRedisCredentialCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", &core.CredentialRecord{Access: "a"}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "u1"))
	require.NoError(t, cache.Delete(ctx, "u1"))

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCredentialCache_Unavailable(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewRedisCredentialCache(client)

	mr.Close()

	_, err := cache.Get(context.Background(), "u1")
	require.Error(t, err)
}

func TestRedisRevocationStore(t *testing.T) {
	client, mr := setupRedis(t)
	s := NewRedisRevocationStore(client)
	ctx := context.Background()

	_, ok, err := s.Cutoff(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	cutoff := time.Now()
	require.NoError(t, s.RevokeBefore(ctx, "u1", cutoff, time.Hour))

	got, ok, err := s.Cutoff(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cutoff.UnixNano(), got.UnixNano())

	// An earlier cutoff never moves the stored one backwards
	require.NoError(t, s.RevokeBefore(ctx, "u1", cutoff.Add(-time.Minute), time.Hour))
	got, _, err = s.Cutoff(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cutoff.UnixNano(), got.UnixNano())

	later := cutoff.Add(time.Minute)
	require.NoError(t, s.RevokeBefore(ctx, "u1", later, time.Hour))
	got, _, err = s.Cutoff(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, later.UnixNano(), got.UnixNano())

	require.NoError(t, mr.Set(revocationPrefix+"u2", "garbage"))
	_, _, err = s.Cutoff(ctx, "u2")
	require.Error(t, err)
}
