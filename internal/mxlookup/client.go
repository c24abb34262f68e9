// Package mxlookup queries DNS servers directly for MX and address records,
// keeping authoritative negative answers (NXDOMAIN, empty answer) apart from
// resolver infrastructure failures (SERVFAIL, REFUSED, timeouts).
package mxlookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrNXDomain is returned when a server answers NXDOMAIN.
	ErrNXDomain = errors.New("mxlookup: domain does not exist")

	// ErrNoAnswer is returned when the domain exists but has no records
	// of the requested type.
	ErrNoAnswer = errors.New("mxlookup: no records of requested type")

	// ErrServerFailure is returned when no configured server produced an
	// authoritative answer.
	ErrServerFailure = errors.New("mxlookup: DNS server failure")
)

// DefaultResolvConf is read by NewFromResolvConf when no path is given.
const DefaultResolvConf = "/etc/resolv.conf"

// FallbackServers are used when the system configuration cannot be read.
var FallbackServers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Client sends queries to a fixed list of nameservers, in order.
type Client struct {
	servers []string
	udp     *dns.Client
	tcp     *dns.Client
}

// New creates a Client for the given "host:port" nameservers. timeout caps
// each single exchange; the caller's context deadline caps the whole lookup.
func New(servers []string, timeout time.Duration) *Client {
	if len(servers) == 0 {
		servers = FallbackServers
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		normalized = append(normalized, withPort(s))
	}
	return &Client{
		servers: normalized,
		udp:     &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// NewFromResolvConf creates a Client from a resolv.conf file. If the file
// cannot be read or lists no servers, FallbackServers are used and the read
// error is returned alongside the usable Client.
func NewFromResolvConf(path string, timeout time.Duration) (*Client, error) {
	if path == "" {
		path = DefaultResolvConf
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return New(nil, timeout), fmt.Errorf("read %s: %w", path, err)
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return New(servers, timeout), nil
}

// Servers returns the nameservers in query order.
func (c *Client) Servers() []string {
	return append([]string(nil), c.servers...)
}

// LookupMX returns the MX records of domain in the order the server sent them.
func (c *Client) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	answers, err := c.query(ctx, domain, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []*net.MX
	for _, rr := range answers {
		if mx, ok := rr.(*dns.MX); ok {
			out = append(out, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: MX %s", ErrNoAnswer, domain)
	}
	return out, nil
}

// LookupHost returns the A and AAAA addresses of domain.
// ErrNoAnswer is returned only when both queries came back empty.
func (c *Client) LookupHost(ctx context.Context, domain string) ([]string, error) {
	var addrs []string
	var firstErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answers, err := c.query(ctx, domain, qtype)
		if err != nil {
			if firstErr == nil && !errors.Is(err, ErrNoAnswer) {
				firstErr = err
			}
			continue
		}
		for _, rr := range answers {
			switch v := rr.(type) {
			case *dns.A:
				addrs = append(addrs, v.A.String())
			case *dns.AAAA:
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}
	if len(addrs) > 0 {
		return addrs, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("%w: A/AAAA %s", ErrNoAnswer, domain)
}

// query asks each server in turn until one gives an authoritative answer.
func (c *Client) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range c.servers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		in, _, err := c.udp.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			in, _, err = c.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}

		switch in.Rcode {
		case dns.RcodeSuccess:
			var answers []dns.RR
			for _, rr := range in.Answer {
				if rr.Header().Rrtype == qtype {
					answers = append(answers, rr)
				}
			}
			if len(answers) == 0 {
				return nil, fmt.Errorf("%w: %s %s", ErrNoAnswer, dns.TypeToString[qtype], name)
			}
			return answers, nil
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%w: %s", ErrNXDomain, name)
		default:
			lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[in.Rcode])
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, fmt.Errorf("%w: %w", ErrServerFailure, lastErr)
}

func withPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), "53")
}
