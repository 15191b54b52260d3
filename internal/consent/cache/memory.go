package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"platewatch/internal/consent/models"
)

// InMemoryCache is a TTL cache for tests and single-node deployments.
// Entries are stored as serialized payloads, matching the Redis client's
// behavior so cached results never alias engine-owned values.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewInMemory constructs an empty in-memory verification cache.
func NewInMemory() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the cache clock. Test helper.
func (c *InMemoryCache) WithClock(now func() time.Time) *InMemoryCache {
	c.now = now
	return c
}

func (c *InMemoryCache) Get(_ context.Context, subject models.Subject, types []models.ConsentType) (*models.VerificationResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[entryKey(subject.Key(), types)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, nil
	}

	var result models.VerificationResult
	if err := json.Unmarshal(entry.payload, &result); err != nil {
		return nil, nil
	}
	return &result, nil
}

func (c *InMemoryCache) Set(_ context.Context, subject models.Subject, types []models.ConsentType, result *models.VerificationResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey(subject.Key(), types)] = memoryEntry{
		payload:   payload,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, subject models.Subject) error {
	prefixes := identityPrefixes(subject)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				delete(c.entries, key)
				break
			}
		}
	}
	return nil
}

// Len reports the live entry count. Test helper.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
