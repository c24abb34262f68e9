package check

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/optimode/emailhealth/internal/smtpsession"
	"github.com/optimode/emailhealth/types"
)

// ProberConfig configures an SMTPProber.
type ProberConfig struct {
	HeloDomain string
	Port       string
	// Dial is injectable for testing. Defaults to a plain net.Dialer.
	Dial smtpsession.DialFunc
}

// SMTPProber asks a mail host whether it would accept a recipient.
// Every call opens and closes its own connection.
type SMTPProber struct {
	cfg ProberConfig
}

func NewSMTPProber(cfg ProberConfig) *SMTPProber {
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = "validator.local"
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	return &SMTPProber{cfg: cfg}
}

// Probe runs one SMTP conversation against host, bounded by timeout, and
// classifies how it ended. It never returns an error: transport and
// protocol problems become ConnectionFailed or Timeout outcomes.
func (p *SMTPProber) Probe(ctx context.Context, host, from, to string, timeout time.Duration) types.ProbeOutcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res := smtpsession.Run(ctx, smtpsession.Config{
		HeloDomain: p.cfg.HeloDomain,
		MailFrom:   from,
		Port:       p.cfg.Port,
		Dial:       p.cfg.Dial,
	}, host, to)

	out := types.ProbeOutcome{
		Host:     host,
		Tag:      classify(res),
		Stage:    res.Stage,
		Code:     res.Code,
		Message:  res.Message,
		Duration: time.Since(start),
	}
	if res.Err != nil {
		out.Message = res.Err.Error()
	}
	return out
}

// classify maps where a conversation stopped to a ProbeTag. Only the RCPT
// reply can say anything about the mailbox; a refusal earlier in the
// conversation is about us, not about the recipient.
func classify(res smtpsession.Result) types.ProbeTag {
	if res.Err != nil {
		if isTimeout(res.Err) {
			return types.ProbeTimeout
		}
		return types.ProbeConnectionFailed
	}

	class := res.Code / 100
	if class == 4 {
		return types.ProbeTemporaryFailure
	}
	if res.Stage != types.StageRcpt {
		return types.ProbeConnectionFailed
	}
	switch class {
	case 2:
		return types.ProbeAccepted
	case 5:
		return types.ProbeRejected
	default:
		return types.ProbeConnectionFailed
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
