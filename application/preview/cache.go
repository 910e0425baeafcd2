package preview

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/Skryldev/audioedit/domain/model"
)

// CacheKey hashes source, operation and serialized options
func CacheKey(sourceURL string, op model.EditType, options any) string {
	data, _ := json.Marshal(options)
	h := fnv.New64a()
	_, _ = h.Write([]byte(sourceURL))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(op))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write(data)
	return strconv.FormatUint(h.Sum64(), 16)
}

type cacheEntry struct {
	ref     model.AudioRef
	created time.Time
}

// Cache holds preview references for a fixed TTL. Expired or cleared entries
// are disposed through the release function.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	release func(context.Context, model.AudioRef) error
}

// NewCache creates a cache
func NewCache(ttl time.Duration, now func() time.Time, release func(context.Context, model.AudioRef) error) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
		release: release,
	}
}

// Get returns a live entry. An expired entry is removed and disposed.
func (c *Cache) Get(key string) (model.AudioRef, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return model.AudioRef{}, false
	}
	if c.now().Sub(e.created) < c.ttl {
		c.mu.Unlock()
		return e.ref, true
	}
	delete(c.entries, key)
	c.mu.Unlock()

	c.dispose(e.ref)
	return model.AudioRef{}, false
}

// Put stores ref, disposing any previous entry under the same key
func (c *Cache) Put(key string, ref model.AudioRef) {
	c.mu.Lock()
	old, had := c.entries[key]
	c.entries[key] = cacheEntry{ref: ref, created: c.now()}
	c.mu.Unlock()

	if had && old.ref.URL != ref.URL {
		c.dispose(old.ref)
	}
}

// Sweep removes and disposes every expired entry and returns how many
func (c *Cache) Sweep() int {
	c.mu.Lock()
	var expired []model.AudioRef
	for k, e := range c.entries {
		if c.now().Sub(e.created) >= c.ttl {
			expired = append(expired, e.ref)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	for _, ref := range expired {
		c.dispose(ref)
	}
	return len(expired)
}

// Len returns the number of entries, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear disposes every entry
func (c *Cache) Clear() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	var err error
	for _, e := range entries {
		if c.release != nil {
			err = multierr.Append(err, c.release(context.Background(), e.ref))
		}
	}
	return err
}

func (c *Cache) dispose(ref model.AudioRef) {
	if c.release != nil {
		_ = c.release(context.Background(), ref)
	}
}
