package emailhealth_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/optimode/emailhealth/check"
	"github.com/optimode/emailhealth/internal/mxlookup"
	"github.com/optimode/emailhealth/types"
)

// mockResolver serves fixed answers per domain and counts calls.
type mockResolver struct {
	hosts map[string][]types.MailHost
	errs  map[string]error
	calls atomic.Int64
}

func (m *mockResolver) Resolve(_ context.Context, domain string) ([]types.MailHost, error) {
	m.calls.Add(1)
	if err, ok := m.errs[domain]; ok {
		return nil, err
	}
	if hosts, ok := m.hosts[domain]; ok {
		return hosts, nil
	}
	return nil, fmt.Errorf("%w: %s", check.ErrNoMXRecord, domain)
}

// mockDNS is a DNSBackend that gives every domain one MX host named after it.
type mockDNS struct {
	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func newMockDNS() *mockDNS {
	return &mockDNS{calls: make(map[string]int)}
}

func (m *mockDNS) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	m.total.Add(1)
	m.mu.Lock()
	m.calls[domain]++
	m.mu.Unlock()
	return []*net.MX{{Host: "mx." + domain + ".", Pref: 10}}, nil
}

func (m *mockDNS) LookupHost(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("no address")
}

// noMXDNS is a DNSBackend whose domains publish no MX records. Address
// lookups answer with addrs, or fail with hostErr when it is set.
type noMXDNS struct {
	addrs   []string
	hostErr error
}

func (d *noMXDNS) LookupMX(context.Context, string) ([]*net.MX, error) {
	return nil, mxlookup.ErrNoAnswer
}

func (d *noMXDNS) LookupHost(context.Context, string) ([]string, error) {
	if d.hostErr != nil {
		return nil, d.hostErr
	}
	return d.addrs, nil
}

// pipeDialer accepts every connection and records the addresses dialled.
type pipeDialer struct {
	mu    sync.Mutex
	addrs []string
}

func (d *pipeDialer) Dial(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, address)
	d.mu.Unlock()
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func (d *pipeDialer) dialled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}

func (m *mockDNS) callsFor(domain string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[domain]
}

// mockProber answers per host, or per recipient when byRcpt has an entry.
// Unknown hosts are accepted.
type mockProber struct {
	byHost map[string]types.ProbeTag
	byRcpt map[string]types.ProbeTag
	delay  time.Duration

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (m *mockProber) Probe(_ context.Context, host, _, to string, _ time.Duration) types.ProbeOutcome {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	tag := types.ProbeAccepted
	if t, ok := m.byHost[host]; ok {
		tag = t
	}
	if t, ok := m.byRcpt[to]; ok {
		tag = t
	}

	out := types.ProbeOutcome{Host: host, Tag: tag, Stage: types.StageRcpt}
	switch tag {
	case types.ProbeAccepted:
		out.Code, out.Message = 250, "2.1.5 Ok"
	case types.ProbeRejected:
		out.Code, out.Message = 550, "5.1.1 User unknown"
	case types.ProbeTemporaryFailure:
		out.Code, out.Message = 451, "4.7.1 Try again later"
	default:
		out.Stage = types.StageConnect
	}
	return out
}
