// Package tokencache stores OAuth2 access tokens obtained by the execution
// engine, keyed by grant kind, token endpoint and identity.
//
// Two stores are provided:
//
//   - Memory: a process-local store, the engine default
//   - Redis: a store shared by every replica pointing at the same Redis
//
// Stores hold entries as immutable values. A refresh replaces the whole
// entry; nothing is ever mutated in place. Stores do not decide whether an
// entry is still usable: the caller compares Entry.ExpiresAt with its own
// clock on every lookup.
//
// Example:
//
//	store := tokencache.NewMemory()
//	engine := restexec.New(restexec.WithTokenStore(store))
//
//	// After rotating a client secret:
//	_ = store.Invalidate(ctx, "https://auth.example.com/token", "my-client")
package tokencache

import (
	"context"
	"time"
)

// Grant identifies the OAuth2 flow that produced a token.
type Grant string

const (
	// GrantClientCredentials is the client_credentials grant.
	GrantClientCredentials Grant = "client_credentials"
	// GrantPassword is the resource owner password grant.
	GrantPassword Grant = "password"
)

// Grants lists every grant kind a store may hold an entry for.
var Grants = []Grant{GrantClientCredentials, GrantPassword}

// Key identifies one cached token. Identity is the client id for
// client_credentials and the username for password.
type Key struct {
	Grant    Grant
	TokenURL string
	Identity string
}

// String renders the key as "grant|tokenURL|identity".
func (k Key) String() string {
	return string(k.Grant) + "|" + k.TokenURL + "|" + k.Identity
}

// Entry is a cached access token. ExpiresAt already has the safety buffer
// subtracted, so an entry is usable while now < ExpiresAt.
type Entry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the entry may be handed out at instant now.
func (e Entry) Valid(now time.Time) bool {
	return e.Token != "" && now.Before(e.ExpiresAt)
}

// Store is a concurrency-safe token store. Implementations must not hold a
// lock across network I/O other than their own backend round trip.
type Store interface {
	// Get returns the entry for key, if any, regardless of expiry.
	Get(ctx context.Context, key Key) (Entry, bool, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry Entry) error

	// Invalidate removes the entries of every grant kind for the
	// (tokenURL, identity) pair.
	Invalidate(ctx context.Context, tokenURL, identity string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}
