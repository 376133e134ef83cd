package tokencache

import (
	"context"

	"github.com/erni27/imcache"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. The zero value is not usable; create one
// with NewMemory.
//
// Entries never expire on their own: an expired entry stays until it is
// replaced by a fresh token or invalidated, which keeps the lifecycle driven
// by lookups only.
type Memory struct {
	cache *imcache.Cache[Key, Entry]
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cache: imcache.New[Key, Entry]()}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key Key) (Entry, bool, error) {
	entry, ok := m.cache.Get(key)
	return entry, ok, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key Key, entry Entry) error {
	m.cache.Set(key, entry, imcache.WithNoExpiration())
	return nil
}

// Invalidate implements Store.
func (m *Memory) Invalidate(_ context.Context, tokenURL, identity string) error {
	for _, grant := range Grants {
		m.cache.Remove(Key{Grant: grant, TokenURL: tokenURL, Identity: identity})
	}
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.cache.RemoveAll()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	return m.cache.Len()
}

// Snapshot returns a copy of every stored entry.
func (m *Memory) Snapshot() map[Key]Entry {
	return m.cache.GetAll()
}
