package dnscache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailhealth/internal/dnscache"
	"github.com/optimode/emailhealth/types"
)

// mockLookup tracks how many times the backend was called.
type mockLookup struct {
	hosts []types.MailHost
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (m *mockLookup) lookup(_ context.Context, _ string) ([]types.MailHost, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.hosts, m.err
}

func TestCache_BasicCaching(t *testing.T) {
	m := &mockLookup{hosts: []types.MailHost{{Host: "mx.example.com", Priority: 10}}}
	c := dnscache.New(m.lookup)

	hosts, err := c.Resolve(context.Background(), "example.com")
	assert.NoError(t, err)
	assert.Len(t, hosts, 1)
	assert.Equal(t, int64(1), m.calls.Load())

	hosts, err = c.Resolve(context.Background(), "example.com")
	assert.NoError(t, err)
	assert.Len(t, hosts, 1)
	assert.Equal(t, int64(1), m.calls.Load()) // still 1, no new lookup
}

func TestCache_CaseInsensitiveKey(t *testing.T) {
	m := &mockLookup{hosts: []types.MailHost{{Host: "mx.example.com"}}}
	c := dnscache.New(m.lookup)

	_, _ = c.Resolve(context.Background(), "Example.COM")
	_, _ = c.Resolve(context.Background(), "example.com")
	assert.Equal(t, int64(1), m.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCache_DifferentDomains(t *testing.T) {
	m := &mockLookup{hosts: []types.MailHost{{Host: "mx.test"}}}
	c := dnscache.New(m.lookup)

	_, _ = c.Resolve(context.Background(), "a.com")
	_, _ = c.Resolve(context.Background(), "b.com")
	assert.Equal(t, int64(2), m.calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_Singleflight(t *testing.T) {
	m := &mockLookup{
		hosts: []types.MailHost{{Host: "mx.test", Priority: 10}},
		delay: 20 * time.Millisecond,
	}
	c := dnscache.New(m.lookup)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hosts, err := c.Resolve(context.Background(), "example.com")
			assert.NoError(t, err)
			assert.Len(t, hosts, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), m.calls.Load())
}

func TestCache_CachesErrors(t *testing.T) {
	backendErr := errors.New("servfail")
	m := &mockLookup{err: backendErr}
	c := dnscache.New(m.lookup)

	_, err := c.Resolve(context.Background(), "bad.com")
	assert.ErrorIs(t, err, backendErr)

	_, err = c.Resolve(context.Background(), "bad.com")
	assert.ErrorIs(t, err, backendErr)
	assert.Equal(t, int64(1), m.calls.Load()) // error was cached
}

func TestCache_WaiterHonorsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c := dnscache.New(func(ctx context.Context, domain string) ([]types.MailHost, error) {
		close(started)
		<-release
		return []types.MailHost{{Host: "mx.slow.com"}}, nil
	})

	go func() { _, _ = c.Resolve(context.Background(), "slow.com") }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Resolve(ctx, "slow.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	hosts, err := c.Resolve(context.Background(), "slow.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.slow.com", hosts[0].Host)
}

func TestCache_ReturnsCopy(t *testing.T) {
	m := &mockLookup{hosts: []types.MailHost{
		{Host: "mx1", Priority: 10},
		{Host: "mx2", Priority: 20},
	}}
	c := dnscache.New(m.lookup)

	hosts1, _ := c.Resolve(context.Background(), "example.com")
	hosts2, _ := c.Resolve(context.Background(), "example.com")

	// Mutating one copy should not affect the other
	hosts1[0].Host = "modified"
	assert.NotEqual(t, hosts1[0].Host, hosts2[0].Host)
}
