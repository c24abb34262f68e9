package emailhealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optimode/emailhealth/check"
	"github.com/optimode/emailhealth/internal/parse"
	"github.com/optimode/emailhealth/types"
)

// Resolver returns the mail hosts of a domain in the order they should be
// tried. Errors should wrap check.ErrNoMXRecord when the domain cannot
// receive mail; any other error is treated as a DNS infrastructure failure.
type Resolver interface {
	Resolve(ctx context.Context, domain string) ([]types.MailHost, error)
}

// Prober asks one mail host whether it would accept the recipient to.
type Prober interface {
	Probe(ctx context.Context, host, from, to string, timeout time.Duration) types.ProbeOutcome
}

// Engine classifies single addresses. It holds no per-address state and is
// safe for concurrent use; the Resolver it wraps is the only shared state.
type Engine struct {
	opts     Options
	syntax   *check.SyntaxChecker
	resolver Resolver
	prober   Prober
	log      logrus.FieldLogger
}

// NewEngine wires an Engine. Zero fields of opts take their defaults, and
// a non-positive MaxMXHosts or ProbeTimeout is replaced by its default so
// every address gets at least one bounded SMTP check.
func NewEngine(opts Options, resolver Resolver, prober Prober, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = discardLogger()
	}
	opts = opts.withDefaults()
	def := DefaultOptions()
	if opts.MaxMXHosts < 1 {
		opts.MaxMXHosts = def.MaxMXHosts
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	return &Engine{
		opts:     opts,
		syntax:   check.NewSyntaxChecker(),
		resolver: resolver,
		prober:   prober,
		log:      log,
	}
}

// Validate classifies one address. It never fails: every problem is
// expressed in the returned result's Status and Reason.
//
// The steps are syntax, domain resolution, then one probe per mail host in
// priority order, stopping at the first host that accepts or rejects the
// mailbox.
func (e *Engine) Validate(ctx context.Context, index int, address string) types.ValidationResult {
	addr := parse.NewAddress(address)
	res := types.ValidationResult{
		Index:   index,
		Address: address,
		Domain:  addr.Domain,
	}
	if res.Domain == "" {
		res.Domain = parse.DomainOf(address)
	}

	if detail := e.syntax.Validate(addr); detail != "" {
		return classified(res, types.StatusInvalid, types.ReasonSyntaxError, detail)
	}

	log := e.log.WithFields(logrus.Fields{"address": addr.Normalized, "domain": addr.Domain})

	hosts, err := e.resolver.Resolve(ctx, addr.Domain)
	if err != nil {
		if errors.Is(err, check.ErrNoMXRecord) {
			log.WithError(err).Debug("domain has no mail exchanger")
			return classified(res, types.StatusInvalid, types.ReasonNoMXRecord, err.Error())
		}
		log.WithError(err).Warn("DNS lookup failed")
		return classified(res, types.StatusUnknown, types.ReasonConnectionTimeout, err.Error())
	}
	if len(hosts) == 0 {
		return classified(res, types.StatusInvalid, types.ReasonNoMXRecord, "no mail hosts")
	}
	if len(hosts) > e.opts.MaxMXHosts {
		hosts = hosts[:e.opts.MaxMXHosts]
	}

	rcpt := addr.Local + "@" + addr.Domain
	for _, h := range hosts {
		out := e.prober.Probe(ctx, h.Host, e.opts.MailFrom, rcpt, e.opts.ProbeTimeout)
		res.Attempts = append(res.Attempts, out)

		log.WithFields(logrus.Fields{
			"host":     out.Host,
			"tag":      out.Tag,
			"stage":    out.Stage,
			"code":     out.Code,
			"duration": out.Duration,
		}).Debug("probe finished")

		switch out.Tag {
		case types.ProbeAccepted:
			return classified(res, types.StatusValid, types.ReasonMailboxAccepted, check.DescribeReply(out.Code, out.Message))
		case types.ProbeRejected:
			return classified(res, types.StatusInvalid, types.ReasonMailboxRejected, check.DescribeReply(out.Code, out.Message))
		}
	}

	if len(res.Attempts) == 0 {
		return classified(res, types.StatusUnknown, types.ReasonServerUnavailable, "no mail host was tried")
	}
	last := res.Attempts[len(res.Attempts)-1]
	detail := fmt.Sprintf("%d host(s) tried, last: %s at %s", len(res.Attempts), last.Tag, last.Stage)
	if last.Code != 0 {
		detail += " (" + check.DescribeReply(last.Code, last.Message) + ")"
	}
	return classified(res, types.StatusUnknown, types.ReasonServerUnavailable, detail)
}

func classified(res types.ValidationResult, status types.Status, reason types.Reason, detail string) types.ValidationResult {
	res.Status = status
	res.Reason = reason
	res.Detail = detail
	return res
}
