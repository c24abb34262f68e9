// Package emailhealth validates lists of email addresses by checking their
// syntax, resolving the mail exchangers of their domains and asking those
// servers, without sending any mail, whether they would accept the mailbox.
//
// Single address:
//
//	res, err := emailhealth.New().Validate(ctx, "user@example.com")
//
// Batch with progress:
//
//	report, err := emailhealth.New().
//	    WithOptions(opts).
//	    WithLogger(log).
//	    ValidateBatch(ctx, addresses, emailhealth.BatchOptions{
//	        Workers:    10,
//	        OnProgress: func(p emailhealth.Progress) { fmt.Println(p.Processed, "/", p.Total) },
//	    })
//
// Every address yields exactly one ValidationResult with a Status of valid,
// invalid or unknown. Unknown means the servers could not be asked, never
// that the address is bad.
package emailhealth

import "github.com/optimode/emailhealth/types"

// ValidationResult is a re-export from the types package so that consumers
// don't need to import the types package directly.
type ValidationResult = types.ValidationResult

// Status is a re-export.
type Status = types.Status

// Reason is a re-export.
type Reason = types.Reason

// MailHost is a re-export.
type MailHost = types.MailHost

// ProbeOutcome is a re-export.
type ProbeOutcome = types.ProbeOutcome

// Status constants re-exported.
const (
	StatusValid   = types.StatusValid
	StatusInvalid = types.StatusInvalid
	StatusUnknown = types.StatusUnknown
)

// Reason constants re-exported.
const (
	ReasonMailboxAccepted   = types.ReasonMailboxAccepted
	ReasonSyntaxError       = types.ReasonSyntaxError
	ReasonNoMXRecord        = types.ReasonNoMXRecord
	ReasonMailboxRejected   = types.ReasonMailboxRejected
	ReasonConnectionTimeout = types.ReasonConnectionTimeout
	ReasonServerUnavailable = types.ReasonServerUnavailable
)
