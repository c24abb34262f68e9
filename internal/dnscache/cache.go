// Package dnscache provides a thread-safe, run-scoped cache for mail host
// resolution with singleflight deduplication for concurrent requests to the
// same domain. Entries never expire: a Cache lives exactly as long as one
// validation run and is then dropped.
package dnscache

import (
	"context"
	"strings"
	"sync"

	"github.com/optimode/emailhealth/types"
)

// LookupFunc resolves the mail hosts of one domain.
type LookupFunc func(ctx context.Context, domain string) ([]types.MailHost, error)

// Cache memoizes LookupFunc per domain, errors included.
// Concurrent lookups for the same domain are deduplicated:
// only one backend lookup is performed, and all waiters receive the result.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lookup  LookupFunc
}

type entry struct {
	hosts []types.MailHost
	err   error
	done  chan struct{} // closed when lookup is complete
}

// New creates an empty cache in front of lookup.
func New(lookup LookupFunc) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		lookup:  lookup,
	}
}

// Resolve returns the mail hosts for domain, performing the lookup only if
// no other caller has started it yet. A waiter whose ctx ends before the
// shared lookup completes gets ctx.Err(); the shared lookup keeps running.
func (c *Cache) Resolve(ctx context.Context, domain string) ([]types.MailHost, error) {
	key := strings.ToLower(domain)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return copyHosts(e.hosts), e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.hosts, e.err = c.lookup(ctx, key)
	close(e.done)

	return copyHosts(e.hosts), e.err
}

// Len returns the number of domains seen so far (for diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// copyHosts keeps callers from mutating cached data.
func copyHosts(hosts []types.MailHost) []types.MailHost {
	if hosts == nil {
		return nil
	}
	out := make([]types.MailHost, len(hosts))
	copy(out, hosts)
	return out
}
