// Package localstore persists per-candidate interview state between
// requests, playing the part of the candidate's local storage.
package localstore

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys that cannot be stored safely.
var ErrInvalidKey = errors.New("invalid state key")

// Store is a small key/value store for serialized interview state.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Namespace scopes every key of s under ns, so candidates never see each
// other's state.
func Namespace(s Store, ns string) Store {
	return &namespaced{inner: s, ns: ns}
}

type namespaced struct {
	inner Store
	ns    string
}

func (n *namespaced) key(k string) string { return n.ns + "/" + k }

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.key(key), value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.key(key))
}
