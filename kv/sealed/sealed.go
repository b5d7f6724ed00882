// Package sealed wraps a kv.Storage so that values are encrypted at rest.
//
// It is used for records that must not sit in the durable layer in clear
// text, such as the authentication session handle. Keys are stored as-is.
package sealed

import (
	"context"
	"crypto/cipher"
	"fmt"

	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
)

// Store encrypts values before delegating to the wrapped Storage.
type Store struct {
	inner kv.Storage
	aead  cipher.AEAD
}

// Option configures a Store.
type Option func(*options)

type options struct {
	algorithm Algorithm
}

// WithAlgorithm selects the cipher (default ChaCha20-Poly1305).
func WithAlgorithm(alg Algorithm) Option {
	return func(o *options) { o.algorithm = alg }
}

// New wraps inner with encryption keyed by secret.
func New(inner kv.Storage, secret string, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, errors.MissingField("encryption_key")
	}
	o := &options{algorithm: ChaCha20}
	for _, opt := range opts {
		opt(o)
	}
	aead, err := newAEAD(secret, o.algorithm)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	return &Store{inner: inner, aead: aead}, nil
}

// Get decrypts the value stored under key. Values that fail to decrypt are
// reported as SERIALIZATION_FAILED so callers treat them as a cache miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := open(s.aead, key, raw)
	if err != nil {
		return "", false, errors.Serialization(key, err)
	}
	return plain, true, nil
}

// Set encrypts value and stores it under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	sealedValue, err := seal(s.aead, key, value)
	if err != nil {
		return errors.Internal(err)
	}
	return s.inner.Set(ctx, key, sealedValue)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

// compile-time interface check
var _ kv.Storage = (*Store)(nil)
