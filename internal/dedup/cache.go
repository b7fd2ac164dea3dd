// Package dedup provides the in-memory seen-message cache shared by all
// fetch workers. It is not durable; after a restart the worst case is a
// re-fetch, which the persistence-level idempotence keys absorb.
package dedup

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Cache answers "new or already processed?" per (identity, fingerprint).
// It is sharded by identity hash so workers on different identities do not
// contend on one lock.
type Cache struct {
	shards    [shardCount]*shard
	retention time.Duration
	maxPerKey int
	now       func() time.Time
}

type shard struct {
	mu         sync.Mutex
	identities map[string]*fingerprintSet
}

// fingerprintSet keeps insertion order so cap eviction is FIFO
type fingerprintSet struct {
	entries map[string]time.Time
	order   []string
}

// New creates a cache. Fingerprints older than retention are evicted, and
// each identity keeps at most maxPerKey fingerprints (oldest dropped first).
func New(retention time.Duration, maxPerKey int) *Cache {
	c := &Cache{
		retention: retention,
		maxPerKey: maxPerKey,
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{identities: make(map[string]*fingerprintSet)}
	}
	return c
}

func (c *Cache) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return c.shards[h.Sum32()%shardCount]
}

// Seen reports whether the fingerprint was already marked for the identity
func (c *Cache) Seen(identity, fingerprint string) bool {
	s := c.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.identities[identity]
	if !ok {
		return false
	}
	seenAt, ok := set.entries[fingerprint]
	if !ok {
		return false
	}
	if c.retention > 0 && c.now().Sub(seenAt) > c.retention {
		return false
	}
	return true
}

// Mark records the fingerprint as processed for the identity
func (c *Cache) Mark(identity, fingerprint string) {
	c.markAt(identity, fingerprint, c.now())
}

// MarkAt records a fingerprint with an explicit timestamp, used when
// warm-starting from durable processed-message rows.
func (c *Cache) MarkAt(identity, fingerprint string, at time.Time) {
	c.markAt(identity, fingerprint, at)
}

func (c *Cache) markAt(identity, fingerprint string, at time.Time) {
	s := c.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.identities[identity]
	if !ok {
		set = &fingerprintSet{entries: make(map[string]time.Time)}
		s.identities[identity] = set
	}

	if _, exists := set.entries[fingerprint]; !exists {
		set.order = append(set.order, fingerprint)
	}
	set.entries[fingerprint] = at

	c.evictLocked(set)
}

// evictLocked drops expired entries and enforces the per-identity cap.
// Caller holds the shard lock.
func (c *Cache) evictLocked(set *fingerprintSet) {
	now := c.now()
	kept := set.order[:0]
	for _, fp := range set.order {
		seenAt, ok := set.entries[fp]
		if !ok {
			continue
		}
		if c.retention > 0 && now.Sub(seenAt) > c.retention {
			delete(set.entries, fp)
			continue
		}
		kept = append(kept, fp)
	}
	set.order = kept

	if c.maxPerKey > 0 {
		for len(set.order) > c.maxPerKey {
			oldest := set.order[0]
			set.order = set.order[1:]
			delete(set.entries, oldest)
		}
	}
}

// Size returns the total number of cached fingerprints, for metrics
func (c *Cache) Size() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for _, set := range s.identities {
			total += len(set.entries)
		}
		s.mu.Unlock()
	}
	return total
}
