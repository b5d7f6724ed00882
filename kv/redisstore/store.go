package redisstore

import (
	"context"
	stderrors "errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
)

const backendName = "redis"

// Store implements kv.Storage on Redis strings without expiry; staleness
// is judged by the timestamps inside the stored records.
type Store struct {
	client    *Client
	keyPrefix string
}

// NewStore creates a Store backed by the given client.
// All keys are prefixed with keyPrefix followed by a colon separator.
func NewStore(client *Client, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.client.rdb.Get(ctx, s.fullKey(key)).Result()
	if stderrors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.StorageRead(backendName, key, err)
	}
	return raw, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.rdb.Set(ctx, s.fullKey(key), value, 0).Err(); err != nil {
		return errors.StorageWrite(backendName, key, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return errors.StorageWrite(backendName, key, err)
	}
	return nil
}

// compile-time interface check
var _ kv.Storage = (*Store)(nil)
