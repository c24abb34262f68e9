package check

import (
	"errors"
	"strings"
)

var (
	// ErrNoMXRecord means DNS authoritatively says the domain cannot receive
	// mail: NXDOMAIN, a null MX, or no MX and no usable host fallback.
	ErrNoMXRecord = errors.New("check: domain has no mail exchanger")

	// ErrDNSFailure means the lookup itself failed (SERVFAIL, REFUSED,
	// timeout, unreachable nameserver). The domain may well be fine.
	ErrDNSFailure = errors.New("check: DNS lookup failed")
)

// replyPatterns maps lower-case fragments of SMTP reply text to a short
// description. Order matters: the first match wins.
var replyPatterns = []struct {
	fragments []string
	detail    string
}{
	{[]string{"user unknown", "unknown user", "no such user", "does not exist", "doesn't exist",
		"not found", "invalid recipient", "recipient unknown", "unknown recipient",
		"mailbox unavailable", "no mailbox", "address rejected", "undeliverable"}, "mailbox not found"},
	{[]string{"disabled", "deactivated", "inactive", "suspended"}, "mailbox disabled"},
	{[]string{"quota", "mailbox full", "over quota", "insufficient storage"}, "mailbox full"},
	{[]string{"greylist", "graylist", "try again later", "try later"}, "greylisted, try again later"},
	{[]string{"relay", "relaying"}, "relaying denied"},
	{[]string{"spamhaus", "blacklist", "blocklist", "blocked", "spam", "reputation", "denied"}, "sender blocked by server policy"},
	{[]string{"too many", "rate limit", "throttl"}, "rate limited"},
}

// DescribeReply turns an SMTP reply into a short human-readable detail.
// Unrecognized text yields a description based on the reply class alone.
func DescribeReply(code int, message string) string {
	if code >= 200 && code < 300 {
		return "mailbox accepted"
	}
	msg := strings.ToLower(message)
	for _, p := range replyPatterns {
		for _, f := range p.fragments {
			if strings.Contains(msg, f) {
				return p.detail
			}
		}
	}

	switch {
	case code >= 400 && code < 500:
		return "temporary failure"
	case code >= 500 && code < 600:
		return "rejected by server"
	case code == 0:
		return "no reply"
	default:
		return "unexpected reply"
	}
}
