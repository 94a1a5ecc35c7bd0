package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

var (
	// ErrStateNotFound indicates the supplied state token was not issued or already consumed.
	ErrStateNotFound = errors.New("state not found")
	// ErrStateExpired indicates the state token expired before the callback completed.
	ErrStateExpired = errors.New("state expired")
)

// StateStore issues one-time state tokens binding an authorization redirect
// to its callback.
type StateStore interface {
	// Issue creates a new state token with the configured TTL.
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued state token.
	Consume(ctx context.Context, token string) error
}

type memoryStateStore struct {
	mutex     sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	tokenSize int
}

// NewMemoryStateStore constructs an in-memory StateStore with the provided TTL.
func NewMemoryStateStore(ttl time.Duration) StateStore {
	return &memoryStateStore{
		entries:   make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
		tokenSize: 32,
	}
}

func (store *memoryStateStore) Issue(ctx context.Context) (string, error) {
	token, err := store.randomToken()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[token] = store.now().Add(store.ttl)
	return token, nil
}

func (store *memoryStateStore) Consume(ctx context.Context, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	expiry, ok := store.entries[token]
	if !ok {
		store.purgeExpiredLocked()
		return ErrStateNotFound
	}
	delete(store.entries, token)
	if store.now().After(expiry) {
		store.purgeExpiredLocked()
		return ErrStateExpired
	}
	store.purgeExpiredLocked()
	return nil
}

func (store *memoryStateStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for token, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, token)
		}
	}
}

func (store *memoryStateStore) randomToken() (string, error) {
	buffer := make([]byte, store.tokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
