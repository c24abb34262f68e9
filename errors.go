package emailhealth

import "errors"

var (
	// ErrInvalidOptions is returned when Options fail validation.
	// The wrapped error lists the offending fields.
	ErrInvalidOptions = errors.New("emailhealth: invalid options")

	// ErrNoAddresses is returned by input collaborators when a source
	// contains no candidate addresses at all.
	ErrNoAddresses = errors.New("emailhealth: no email addresses found")
)
