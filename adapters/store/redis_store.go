package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

const (
	credentialPrefix = "authbridge:credentials:"
	revocationPrefix = "authbridge:revoked:"
)

// NewRedisClient parses url and verifies connectivity
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisCredentialCache is a Redis implementation of the CredentialCache interface
type RedisCredentialCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCredentialCache creates a new Redis credential cache
func NewRedisCredentialCache(client redis.UniversalClient) *RedisCredentialCache {
	return &RedisCredentialCache{
		client: client,
		prefix: credentialPrefix,
	}
}

var _ ports.CredentialCache = (*RedisCredentialCache)(nil)

// Get loads the record for identity. A missing key is a cache miss, not an error.
func (s *RedisCredentialCache) Get(ctx context.Context, identity core.Identity) (*core.CredentialRecord, error) {
	key := s.prefix + string(identity)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var record core.CredentialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Corrupt entry, drop it and report a miss
		s.client.Del(ctx, key)
		return nil, nil
	}

	return &record, nil
}

// Set stores the record with expiration
func (s *RedisCredentialCache) Set(ctx context.Context, identity core.Identity, record *core.CredentialRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal credential record: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+string(identity), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credential record: %w", err)
	}

	return nil
}

// Delete removes the record for identity
func (s *RedisCredentialCache) Delete(ctx context.Context, identity core.Identity) error {
	if err := s.client.Del(ctx, s.prefix+string(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete credential record: %w", err)
	}
	return nil
}

// RedisRevocationStore is a Redis implementation of the RevocationStore interface
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore creates a new Redis revocation store
func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{
		client: client,
		prefix: revocationPrefix,
	}
}

var _ ports.RevocationStore = (*RedisRevocationStore)(nil)

const revokeRetries = 5

// RevokeBefore stores the cutoff as unix nanoseconds. A later cutoff already
// in place is kept.
func (s *RedisRevocationStore) RevokeBefore(ctx context.Context, identity core.Identity, cutoff time.Time, ttl time.Duration) error {
	key := s.prefix + string(identity)
	nanos := cutoff.UnixNano()

	advance := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current > nanos {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, strconv.FormatInt(nanos, 10), ttl)
			return nil
		})
		return err
	}

	for i := 0; i < revokeRetries; i++ {
		err := s.client.Watch(ctx, advance, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to revoke sessions: %w", redis.TxFailedErr)
}

// Cutoff returns the stored cutoff for identity
func (s *RedisRevocationStore) Cutoff(ctx context.Context, identity core.Identity) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+string(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to check session revocation: %w", err)
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt revocation cutoff for %s: %w", identity, err)
	}

	return time.Unix(0, nanos), true, nil
}
