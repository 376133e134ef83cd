package restexec

import (
	"sync"
	"time"
)

// fakeClock is a manually advanced clock for token expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testTokenURL  = "https://auth.example.com/oauth/token"
	testTokenPath = "/oauth/token"
)

func testClientCredentials() ClientCredentialsAuth {
	return ClientCredentialsAuth{
		TokenURL:     testTokenURL,
		ClientID:     "crm-connector",
		ClientSecret: "s3cr3t",
		Scope:        "contacts.read contacts.write",
	}
}
