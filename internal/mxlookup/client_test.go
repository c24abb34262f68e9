package mxlookup_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailhealth/internal/mxlookup"
)

// startServer runs a UDP DNS server on a random local port.
func startServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func zone(t *testing.T) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]

		add := func(s string) {
			rr, err := dns.NewRR(s)
			if err != nil {
				t.Errorf("bad RR %q: %v", s, err)
				return
			}
			m.Answer = append(m.Answer, rr)
		}

		switch q.Name {
		case "example.com.":
			if q.Qtype == dns.TypeMX {
				add("example.com. 300 IN MX 20 mx2.example.com.")
				add("example.com. 300 IN MX 10 mx1.example.com.")
			}
		case "hostonly.com.":
			if q.Qtype == dns.TypeA {
				add("hostonly.com. 300 IN A 192.0.2.1")
			}
		case "broken.com.":
			m.SetRcode(r, dns.RcodeServerFailure)
		case "refused.com.":
			m.SetRcode(r, dns.RcodeRefused)
		default:
			m.SetRcode(r, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	}
}

func TestLookupMX(t *testing.T) {
	c := mxlookup.New([]string{startServer(t, zone(t))}, time.Second)

	recs, err := c.LookupMX(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "mx2.example.com.", recs[0].Host)
	assert.Equal(t, uint16(20), recs[0].Pref)
	assert.Equal(t, "mx1.example.com.", recs[1].Host)
}

func TestLookupMX_NXDomain(t *testing.T) {
	c := mxlookup.New([]string{startServer(t, zone(t))}, time.Second)

	_, err := c.LookupMX(context.Background(), "nope.invalid")
	assert.ErrorIs(t, err, mxlookup.ErrNXDomain)
}

func TestLookupMX_NoAnswer(t *testing.T) {
	c := mxlookup.New([]string{startServer(t, zone(t))}, time.Second)

	_, err := c.LookupMX(context.Background(), "hostonly.com")
	assert.ErrorIs(t, err, mxlookup.ErrNoAnswer)
}

func TestLookupMX_ServerFailure(t *testing.T) {
	c := mxlookup.New([]string{startServer(t, zone(t))}, time.Second)

	_, err := c.LookupMX(context.Background(), "broken.com")
	assert.ErrorIs(t, err, mxlookup.ErrServerFailure)

	_, err = c.LookupMX(context.Background(), "refused.com")
	assert.ErrorIs(t, err, mxlookup.ErrServerFailure)
}

func TestLookupMX_FailsOverToNextServer(t *testing.T) {
	var failing atomic.Int64
	bad := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		failing.Add(1)
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeServerFailure)
		_ = w.WriteMsg(m)
	})
	good := startServer(t, zone(t))

	c := mxlookup.New([]string{bad, good}, time.Second)
	recs, err := c.LookupMX(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int64(1), failing.Load())
}

func TestLookupMX_Timeout(t *testing.T) {
	silent := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {})

	c := mxlookup.New([]string{silent}, 100*time.Millisecond)
	start := time.Now()
	_, err := c.LookupMX(context.Background(), "example.com")
	assert.ErrorIs(t, err, mxlookup.ErrServerFailure)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLookupHost(t *testing.T) {
	c := mxlookup.New([]string{startServer(t, zone(t))}, time.Second)

	addrs, err := c.LookupHost(context.Background(), "hostonly.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.1"}, addrs)

	_, err = c.LookupHost(context.Background(), "nope.invalid")
	assert.ErrorIs(t, err, mxlookup.ErrNXDomain)
}

func TestNew_DefaultsPort(t *testing.T) {
	c := mxlookup.New([]string{"192.0.2.53", "[2001:db8::53]"}, 0)
	assert.Equal(t, []string{"192.0.2.53:53", "[2001:db8::53]:53"}, c.Servers())

	assert.Equal(t, mxlookup.FallbackServers, mxlookup.New(nil, 0).Servers())
}

func TestNewFromResolvConf_MissingFile(t *testing.T) {
	c, err := mxlookup.NewFromResolvConf("/nonexistent/resolv.conf", time.Second)
	assert.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, mxlookup.FallbackServers, c.Servers())
}
