package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenAndMark(t *testing.T) {
	cache := New(time.Hour, 100)

	assert.False(t, cache.Seen("s1", "fp1"))

	cache.Mark("s1", "fp1")
	assert.True(t, cache.Seen("s1", "fp1"))

	// fingerprints are scoped per identity
	assert.False(t, cache.Seen("s2", "fp1"))
}

func TestRetentionEviction(t *testing.T) {
	cache := New(time.Hour, 100)

	base := time.Now()
	cache.now = func() time.Time { return base }

	cache.Mark("s1", "old")

	cache.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, cache.Seen("s1", "old"), "expired fingerprint should not be seen")

	// marking anything sweeps expired entries out
	cache.Mark("s1", "new")
	assert.Equal(t, 1, cache.Size())
}

func TestCapEviction(t *testing.T) {
	cache := New(0, 2)

	cache.Mark("s1", "a")
	cache.Mark("s1", "b")
	cache.Mark("s1", "c")

	assert.False(t, cache.Seen("s1", "a"), "oldest fingerprint should be evicted first")
	assert.True(t, cache.Seen("s1", "b"))
	assert.True(t, cache.Seen("s1", "c"))
	assert.Equal(t, 2, cache.Size())
}

func TestWarmStart(t *testing.T) {
	cache := New(time.Hour, 100)

	cache.MarkAt("s1", "fp1", time.Now().Add(-30*time.Minute))
	assert.True(t, cache.Seen("s1", "fp1"))

	cache.MarkAt("s1", "fp2", time.Now().Add(-2*time.Hour))
	assert.False(t, cache.Seen("s1", "fp2"), "warm-started fingerprint beyond retention is ignored")
}

func TestConcurrentAccess(t *testing.T) {
	cache := New(time.Hour, 1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			identity := fmt.Sprintf("student-%d", w)
			for i := 0; i < 100; i++ {
				fp := fmt.Sprintf("fp-%d", i)
				cache.Mark(identity, fp)
				assert.True(t, cache.Seen(identity, fp))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, cache.Size())
}
