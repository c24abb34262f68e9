package check_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailhealth/check"
	"github.com/optimode/emailhealth/internal/mxlookup"
	"github.com/optimode/emailhealth/types"
)

// mockDNS tracks how many MX lookups were made.
type mockDNS struct {
	mx      []*net.MX
	mxErr   error
	addrs   []string
	hostErr error

	mxCalls   atomic.Int64
	hostCalls atomic.Int64
}

func (m *mockDNS) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	m.mxCalls.Add(1)
	return m.mx, m.mxErr
}

func (m *mockDNS) LookupHost(_ context.Context, _ string) ([]string, error) {
	m.hostCalls.Add(1)
	return m.addrs, m.hostErr
}

func openPort(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func closedPort(context.Context, string, string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

func resolverConfig() check.ResolverConfig {
	return check.ResolverConfig{Timeout: time.Second, FallbackToHost: true, Port: "25", Dial: closedPort}
}

func TestMXResolver_SortsByPriority(t *testing.T) {
	m := &mockDNS{mx: []*net.MX{
		{Host: "MX3.example.com.", Pref: 30},
		{Host: "mx1.example.com.", Pref: 10},
		{Host: "mx2a.example.com.", Pref: 20},
		{Host: "mx2b.example.com.", Pref: 20},
	}}
	r := check.NewMXResolver(resolverConfig(), m)

	hosts, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []types.MailHost{
		{Host: "mx1.example.com", Priority: 10},
		{Host: "mx2a.example.com", Priority: 20},
		{Host: "mx2b.example.com", Priority: 20},
		{Host: "mx3.example.com", Priority: 30},
	}, hosts)
}

func TestMXResolver_OneLookupPerDomain(t *testing.T) {
	m := &mockDNS{mx: []*net.MX{{Host: "mx.example.com.", Pref: 10}}}
	r := check.NewMXResolver(resolverConfig(), m)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), m.mxCalls.Load())
	assert.Equal(t, 1, r.Domains())
}

func TestMXResolver_NXDomain(t *testing.T) {
	m := &mockDNS{mxErr: fmt.Errorf("%w: nope.invalid", mxlookup.ErrNXDomain)}
	r := check.NewMXResolver(resolverConfig(), m)

	_, err := r.Resolve(context.Background(), "nope.invalid")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
	assert.Equal(t, int64(0), m.hostCalls.Load())
}

func TestMXResolver_NetDNSErrorNotFound(t *testing.T) {
	m := &mockDNS{mxErr: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}
	r := check.NewMXResolver(resolverConfig(), m)

	_, err := r.Resolve(context.Background(), "nope.invalid")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
}

func TestMXResolver_InfrastructureFailure(t *testing.T) {
	m := &mockDNS{mxErr: fmt.Errorf("%w: SERVFAIL", mxlookup.ErrServerFailure)}
	r := check.NewMXResolver(resolverConfig(), m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrDNSFailure)
	assert.NotErrorIs(t, err, check.ErrNoMXRecord)

	// failures are cached for the run too
	_, err = r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrDNSFailure)
	assert.Equal(t, int64(1), m.mxCalls.Load())
}

func TestMXResolver_NullMX(t *testing.T) {
	m := &mockDNS{mx: []*net.MX{{Host: ".", Pref: 0}}}
	r := check.NewMXResolver(resolverConfig(), m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
}

func TestMXResolver_HostFallback(t *testing.T) {
	m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, addrs: []string{"192.0.2.1"}}
	cfg := resolverConfig()
	cfg.Dial = openPort
	r := check.NewMXResolver(cfg, m)

	hosts, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []types.MailHost{{Host: "example.com", Implicit: true}}, hosts)
}

func TestMXResolver_HostFallbackPortClosed(t *testing.T) {
	m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, addrs: []string{"192.0.2.1"}}
	r := check.NewMXResolver(resolverConfig(), m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
}

func TestMXResolver_HostFallbackNoAddress(t *testing.T) {
	m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, hostErr: mxlookup.ErrNoAnswer}
	cfg := resolverConfig()
	cfg.Dial = openPort
	r := check.NewMXResolver(cfg, m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
}

func TestMXResolver_HostFallbackAddressLookupFails(t *testing.T) {
	tests := []struct {
		name    string
		hostErr error
		want    error
	}{
		{"server failure", mxlookup.ErrServerFailure, check.ErrDNSFailure},
		{"deadline", context.DeadlineExceeded, check.ErrDNSFailure},
		{"no answer", mxlookup.ErrNoAnswer, check.ErrNoMXRecord},
		{"nxdomain", mxlookup.ErrNXDomain, check.ErrNoMXRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, hostErr: tt.hostErr}
			cfg := resolverConfig()
			cfg.Dial = openPort
			r := check.NewMXResolver(cfg, m)

			_, err := r.Resolve(context.Background(), "example.com")
			assert.ErrorIs(t, err, tt.want)
			if tt.want == check.ErrDNSFailure {
				assert.NotErrorIs(t, err, check.ErrNoMXRecord)
			}
		})
	}
}

func TestMXResolver_HostFallbackDialTimeout(t *testing.T) {
	m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, addrs: []string{"192.0.2.1"}}
	cfg := resolverConfig()
	cfg.Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, fmt.Errorf("dial tcp: %w", context.DeadlineExceeded)
	}
	r := check.NewMXResolver(cfg, m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrDNSFailure)
	assert.NotErrorIs(t, err, check.ErrNoMXRecord)
}

func TestMXResolver_HostFallbackDisabled(t *testing.T) {
	m := &mockDNS{mxErr: mxlookup.ErrNoAnswer, addrs: []string{"192.0.2.1"}}
	cfg := resolverConfig()
	cfg.FallbackToHost = false
	cfg.Dial = openPort
	r := check.NewMXResolver(cfg, m)

	_, err := r.Resolve(context.Background(), "example.com")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)
	assert.Equal(t, int64(0), m.hostCalls.Load())
}

func TestMXResolver_AgainstDNSServer(t *testing.T) {
	addr := startDNS(t)
	r := check.NewMXResolver(resolverConfig(), mxlookup.New([]string{addr}, time.Second))

	hosts, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "mx1.example.com", hosts[0].Host)

	_, err = r.Resolve(context.Background(), "missing.example")
	assert.ErrorIs(t, err, check.ErrNoMXRecord)

	_, err = r.Resolve(context.Background(), "broken.example")
	assert.ErrorIs(t, err, check.ErrDNSFailure)
}
