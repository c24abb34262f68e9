// Package types contains the shared types for emailhealth.
// This package does not import anything from other emailhealth packages
// to avoid circular imports.
package types

import "time"

// Status is the final classification of one address.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusUnknown Status = "unknown"
)

// Reason explains a Status.
type Reason string

const (
	ReasonMailboxAccepted   Reason = "mailbox_accepted"
	ReasonSyntaxError       Reason = "syntax_error"
	ReasonNoMXRecord        Reason = "no_mx_record"
	ReasonMailboxRejected   Reason = "mailbox_rejected"
	ReasonConnectionTimeout Reason = "connection_timeout"
	ReasonServerUnavailable Reason = "server_unavailable"
)

// Reasons lists every Reason in a stable order.
var Reasons = []Reason{
	ReasonMailboxAccepted,
	ReasonSyntaxError,
	ReasonNoMXRecord,
	ReasonMailboxRejected,
	ReasonConnectionTimeout,
	ReasonServerUnavailable,
}

// ProbeTag is the outcome of one SMTP exchange against one host.
type ProbeTag string

const (
	ProbeAccepted         ProbeTag = "accepted"
	ProbeRejected         ProbeTag = "rejected"
	ProbeTemporaryFailure ProbeTag = "temporary_failure"
	ProbeConnectionFailed ProbeTag = "connection_failed"
	ProbeTimeout          ProbeTag = "timeout"
)

// Authoritative reports whether the tag settles the mailbox question,
// i.e. no further MX hosts need to be tried.
func (t ProbeTag) Authoritative() bool {
	return t == ProbeAccepted || t == ProbeRejected
}

// Stage is the SMTP protocol step that produced a ProbeOutcome.
type Stage string

const (
	StageConnect Stage = "connect"
	StageBanner  Stage = "banner"
	StageHelo    Stage = "helo"
	StageMail    Stage = "mail"
	StageRcpt    Stage = "rcpt"
)

// MailHost is a mail exchanger for a domain.
type MailHost struct {
	Host     string `json:"host"`
	Priority uint16 `json:"priority"`
	// Implicit is set when the domain has no MX record and the domain
	// itself accepted a connection on the mail port.
	Implicit bool `json:"implicit,omitempty"`
}

// ProbeOutcome is the result of one SMTP probe against one host.
type ProbeOutcome struct {
	Host     string        `json:"host"`
	Tag      ProbeTag      `json:"tag"`
	Stage    Stage         `json:"stage"`
	Code     int           `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ValidationResult is the outcome for one candidate address.
type ValidationResult struct {
	Index    int            `json:"index"`
	Address  string         `json:"address"`
	Domain   string         `json:"domain,omitempty"`
	Status   Status         `json:"status"`
	Reason   Reason         `json:"reason"`
	Detail   string         `json:"detail,omitempty"`
	Attempts []ProbeOutcome `json:"attempts,omitempty"`
}

// LastAttempt returns the final probe attempt, if any probe was made.
func (r ValidationResult) LastAttempt() (ProbeOutcome, bool) {
	if len(r.Attempts) == 0 {
		return ProbeOutcome{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}
