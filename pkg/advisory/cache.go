package advisory

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var cacheLog = logger.New("advisory:cache")

// CachingChecker remembers the advisories of each slug for one batch.
// Concurrent lookups of the same slug share a single request. Failures are
// not cached, so a file checked later may still succeed.
type CachingChecker struct {
	next Checker

	group singleflight.Group
	mu    sync.Mutex
	cache map[string][]Advisory
}

// NewCachingChecker wraps next.
func NewCachingChecker(next Checker) *CachingChecker {
	return &CachingChecker{next: next, cache: make(map[string][]Advisory)}
}

func (c *CachingChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	key := strings.ToLower(slug)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		cacheLog.Printf("Cache hit for %s", slug)
		return cached, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		advisories, err := c.next.Lookup(ctx, slug)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = advisories
		c.mu.Unlock()
		return advisories, nil
	})
	if shared {
		cacheLog.Printf("Shared in-flight lookup for %s", slug)
	}
	if err != nil {
		return nil, err
	}
	return v.([]Advisory), nil
}
