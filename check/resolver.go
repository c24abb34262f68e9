package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/optimode/emailhealth/internal/dnscache"
	"github.com/optimode/emailhealth/internal/mxlookup"
	"github.com/optimode/emailhealth/internal/smtpsession"
	"github.com/optimode/emailhealth/types"
)

// DNSBackend answers the raw DNS questions the resolver needs.
// *mxlookup.Client implements it; tests inject mocks.
type DNSBackend interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	LookupHost(ctx context.Context, domain string) ([]string, error)
}

// ResolverConfig configures an MXResolver.
type ResolverConfig struct {
	// Timeout bounds one domain resolution, host fallback included.
	Timeout time.Duration
	// FallbackToHost treats the domain itself as its mail host when it has
	// no MX records but has an address and accepts connections on Port.
	FallbackToHost bool
	Port           string
	// Dial is used for the fallback connection check.
	Dial smtpsession.DialFunc
}

// MXResolver turns a domain into an ordered list of mail hosts.
// Each resolver carries its own cache: one backend resolution per domain
// for the lifetime of the resolver.
type MXResolver struct {
	cfg     ResolverConfig
	backend DNSBackend
	cache   *dnscache.Cache
}

// NewMXResolver creates a resolver with an empty cache.
func NewMXResolver(cfg ResolverConfig, backend DNSBackend) *MXResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	if cfg.Dial == nil {
		cfg.Dial = (&net.Dialer{}).DialContext
	}
	r := &MXResolver{cfg: cfg, backend: backend}
	r.cache = dnscache.New(r.resolve)
	return r
}

// Resolve returns the mail hosts of domain sorted by ascending priority.
// Errors are ErrNoMXRecord or ErrDNSFailure, possibly wrapping detail.
func (r *MXResolver) Resolve(ctx context.Context, domain string) ([]types.MailHost, error) {
	hosts, err := r.cache.Resolve(ctx, domain)
	if err != nil && !errors.Is(err, ErrNoMXRecord) && !errors.Is(err, ErrDNSFailure) {
		return nil, fmt.Errorf("%w: %w", ErrDNSFailure, err)
	}
	return hosts, err
}

// Domains returns how many distinct domains this resolver has looked up.
func (r *MXResolver) Domains() int {
	return r.cache.Len()
}

func (r *MXResolver) resolve(ctx context.Context, domain string) ([]types.MailHost, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	records, err := r.backend.LookupMX(ctx, domain)
	switch {
	case err == nil && len(records) > 0:
		return mailHosts(domain, records)
	case err == nil, isNoAnswer(err):
		return r.fallback(ctx, domain)
	case isNXDomain(err):
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoMXRecord, domain)
	default:
		return nil, fmt.Errorf("%w: %w", ErrDNSFailure, err)
	}
}

// mailHosts sorts records by preference, keeping DNS order for ties.
// A single record pointing at "." is a null MX (RFC 7505).
func mailHosts(domain string, records []*net.MX) ([]types.MailHost, error) {
	if len(records) == 1 && strings.TrimSuffix(records[0].Host, ".") == "" {
		return nil, fmt.Errorf("%w: %s publishes a null MX", ErrNoMXRecord, domain)
	}

	hosts := make([]types.MailHost, 0, len(records))
	for _, mx := range records {
		host := strings.ToLower(strings.TrimSuffix(mx.Host, "."))
		if host == "" {
			continue
		}
		hosts = append(hosts, types.MailHost{Host: host, Priority: mx.Pref})
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: %s has no usable MX targets", ErrNoMXRecord, domain)
	}
	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Priority < hosts[j].Priority
	})
	return hosts, nil
}

// fallback applies the implicit MX rule: a domain without MX records but
// with an address that accepts connections on the mail port is its own host.
func (r *MXResolver) fallback(ctx context.Context, domain string) ([]types.MailHost, error) {
	if !r.cfg.FallbackToHost {
		return nil, fmt.Errorf("%w: %s has no MX records", ErrNoMXRecord, domain)
	}

	addrs, err := r.backend.LookupHost(ctx, domain)
	switch {
	case err != nil && !isNoAnswer(err) && !isNXDomain(err):
		return nil, fmt.Errorf("%w: address lookup for %s: %w", ErrDNSFailure, domain, err)
	case len(addrs) == 0:
		return nil, fmt.Errorf("%w: %s has no MX or address records", ErrNoMXRecord, domain)
	}

	conn, err := r.cfg.Dial(ctx, "tcp", net.JoinHostPort(domain, r.cfg.Port))
	if err != nil {
		// Only a refused connection is an answer; running out of time is not.
		if isDeadline(ctx, err) {
			return nil, fmt.Errorf("%w: connecting to %s: %w", ErrDNSFailure, domain, err)
		}
		return nil, fmt.Errorf("%w: %s has no MX records and port %s is closed", ErrNoMXRecord, domain, r.cfg.Port)
	}
	_ = conn.Close()

	return []types.MailHost{{Host: domain, Implicit: true}}, nil
}

func isNXDomain(err error) bool {
	if errors.Is(err, mxlookup.ErrNXDomain) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound && !dnsErr.IsTimeout
}

func isDeadline(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNoAnswer(err error) bool {
	return errors.Is(err, mxlookup.ErrNoAnswer)
}
