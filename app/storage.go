package app

import (
	"context"
	"errors"

	apperrors "github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
)

var errBackendNotStarted = errors.New("storage backend not started")

// backendStorage forwards to a backend opened when its component starts.
type backendStorage struct {
	name  string
	store func() kv.Storage
}

func (s backendStorage) Get(ctx context.Context, key string) (string, bool, error) {
	st := s.store()
	if st == nil {
		return "", false, apperrors.StorageRead(s.name, key, errBackendNotStarted)
	}
	return st.Get(ctx, key)
}

func (s backendStorage) Set(ctx context.Context, key, value string) error {
	st := s.store()
	if st == nil {
		return apperrors.StorageWrite(s.name, key, errBackendNotStarted)
	}
	return st.Set(ctx, key, value)
}

func (s backendStorage) Remove(ctx context.Context, key string) error {
	st := s.store()
	if st == nil {
		return apperrors.StorageWrite(s.name, key, errBackendNotStarted)
	}
	return st.Remove(ctx, key)
}

var _ kv.Storage = backendStorage{}
