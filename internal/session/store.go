package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Store keeps one Session per user identity in an expirable LRU so idle
// sessions are evicted after their TTL. Sessions for the same username are
// shared across concurrent requests.
type Store struct {
	mu      sync.Mutex
	inner   *lru.LRU[string, *Session]
	factory func(username, password string) *Session
}

// NewStore creates a store holding up to size sessions with the given idle
// TTL. The factory is invoked under the store lock, so at most one Session is
// ever created per username.
func NewStore(size int, ttl time.Duration, factory func(username, password string) *Session) *Store {
	if size <= 0 {
		size = 100
	}
	return &Store{
		inner:   lru.NewLRU[string, *Session](size, nil, ttl),
		factory: factory,
	}
}

// Get returns the cached session for the username, creating one when absent
// or evicted.
func (st *Store) Get(username, password string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.inner.Get(username); ok {
		return s
	}
	s := st.factory(username, password)
	st.inner.Add(username, s)
	return s
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	return st.inner.Len()
}
