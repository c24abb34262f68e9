package emailhealth

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/optimode/emailhealth/check"
	"github.com/optimode/emailhealth/internal/mxlookup"
	"github.com/optimode/emailhealth/internal/smtpsession"
)

// Validator is the main fluent builder struct.
// Instantiate with the New() function.
//
// A Validator holds configuration only. Each Validate or ValidateBatch call
// builds a fresh Engine with its own resolver cache, so nothing leaks from
// one run into the next.
type Validator struct {
	opts Options
	err  error // configuration error, returned on Validate()
	log  logrus.FieldLogger

	backend  check.DNSBackend
	resolver Resolver
	prober   Prober
	dial     smtpsession.DialFunc

	backendOnce sync.Once
}

// New creates a Validator with DefaultOptions and a silent logger.
func New() *Validator {
	return &Validator{
		opts: DefaultOptions(),
		log:  discardLogger(),
	}
}

// WithOptions replaces the options. Zero fields take their defaults.
// Invalid options are reported by the next Validate or ValidateBatch call.
func (v *Validator) WithOptions(opts Options) *Validator {
	v.opts = opts.withDefaults()
	v.err = v.opts.Validate()
	if v.err == nil && v.opts.ProxyURL != "" && v.dial == nil {
		if _, err := smtpsession.NewDialer(v.opts.ProxyURL); err != nil {
			v.err = fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	return v
}

// WithLogger sets the logger. Probe attempts are logged at debug level,
// run boundaries at info and DNS infrastructure failures at warn.
func (v *Validator) WithLogger(log logrus.FieldLogger) *Validator {
	if log != nil {
		v.log = log
	}
	return v
}

// WithDNSBackend replaces the DNS client. Each run still wraps it in a
// fresh MXResolver and cache.
func (v *Validator) WithDNSBackend(b check.DNSBackend) *Validator {
	v.backend = b
	return v
}

// WithResolver replaces domain resolution entirely, bypassing the per-run
// cache. Used for tests and for callers with their own caching.
func (v *Validator) WithResolver(r Resolver) *Validator {
	v.resolver = r
	return v
}

// WithProber replaces the SMTP prober.
func (v *Validator) WithProber(p Prober) *Validator {
	v.prober = p
	return v
}

// WithDialer replaces how SMTP and host-fallback connections are opened.
func (v *Validator) WithDialer(d smtpsession.DialFunc) *Validator {
	v.dial = d
	return v
}

// Options returns the effective options.
func (v *Validator) Options() Options {
	return v.opts
}

// Validate classifies one address. The error is non-nil only for
// configuration problems.
func (v *Validator) Validate(ctx context.Context, address string) (ValidationResult, error) {
	e, err := v.newEngine()
	if err != nil {
		return ValidationResult{}, err
	}
	return e.Validate(ctx, 0, address), nil
}

// newEngine assembles an Engine for one run.
func (v *Validator) newEngine() (*Engine, error) {
	if v.err != nil {
		return nil, v.err
	}

	dial := v.dial
	if dial == nil {
		d, err := smtpsession.NewDialer(v.opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		dial = d
	}

	resolver := v.resolver
	if resolver == nil {
		resolver = check.NewMXResolver(check.ResolverConfig{
			Timeout:        v.opts.DNSTimeout,
			FallbackToHost: !v.opts.DisableHostFallback,
			Port:           v.opts.Port,
			Dial:           dial,
		}, v.dnsBackend())
	}

	prober := v.prober
	if prober == nil {
		prober = check.NewSMTPProber(check.ProberConfig{
			HeloDomain: v.opts.HeloDomain,
			Port:       v.opts.Port,
			Dial:       dial,
		})
	}

	return NewEngine(v.opts, resolver, prober, v.log), nil
}

// dnsBackend returns the injected backend or lazily builds the default
// miekg/dns client. The client is stateless and shared across runs.
func (v *Validator) dnsBackend() check.DNSBackend {
	v.backendOnce.Do(func() {
		if v.backend != nil {
			return
		}
		if len(v.opts.Nameservers) > 0 {
			v.backend = mxlookup.New(v.opts.Nameservers, v.opts.DNSTimeout)
			return
		}
		c, err := mxlookup.NewFromResolvConf("", v.opts.DNSTimeout)
		if err != nil {
			v.log.WithError(err).Debug("using fallback nameservers")
		}
		v.backend = c
	})
	return v.backend
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
