// Package check contains the per-address building blocks of the emailhealth
// engine: the syntax checker, the MX resolver and the SMTP prober.
// These types can be used directly, but the recommended approach is
// to use the Validator from the github.com/optimode/emailhealth package.
package check
