package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"otp-gateway/pkg/clock"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a single-process KeyValueStore with the same TTL semantics as Redis.
// It backs STORE_DRIVER=memory for local development and the unit tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clock.Clocker
}

// NewMemoryStore creates an empty store reading time from clk
func NewMemoryStore(clk clock.Clocker) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   clk,
	}
}

// lookup returns the live entry for key, evicting it if expired. Caller holds mu.
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("memory SET %s: ttl must be positive, got %v", key, ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	var n int64
	if ok {
		var err error
		n, err = strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory INCR %s: value is not an integer", key)
		}
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	e.expiresAt = s.clock.Now().Add(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return TTLNoKey, nil
	}
	if e.expiresAt.IsZero() {
		return TTLNoExpiry, nil
	}
	return e.expiresAt.Sub(s.clock.Now()), nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of live keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if _, ok := s.lookup(key); ok {
			n++
		}
	}
	return n
}
