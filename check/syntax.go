package check

import (
	"strings"
	"unicode"

	"github.com/optimode/emailhealth/internal/parse"
)

// localSpecial are the RFC 5321 ASCII characters allowed in a dot-atom
// local part besides letters and digits.
const localSpecial = "!#$%&'*+/=?^_`{|}~-."

// SyntaxChecker validates the structure of an address: exactly one "@",
// a local part restricted to the dot-atom character set and a domain with
// at least two well-formed labels. It performs no I/O.
type SyntaxChecker struct{}

func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// Check reports whether address is syntactically valid.
func (c *SyntaxChecker) Check(address string) bool {
	return c.Explain(address) == ""
}

// Explain returns why address is malformed, or "" if it is well-formed.
func (c *SyntaxChecker) Explain(address string) string {
	return c.Validate(parse.NewAddress(address))
}

// Validate is Explain for an already parsed address.
func (c *SyntaxChecker) Validate(a parse.Address) string {
	if a.Normalized == "" {
		return "empty email address"
	}
	if !a.Valid {
		return "invalid email syntax"
	}

	// Length checks (RFC 5321)
	if len(a.Normalized) > 254 {
		return "email address exceeds 254 characters"
	}
	if len(a.Local) > 64 {
		return "local part exceeds 64 characters"
	}

	if err := validateLocal(a.Local); err != "" {
		return err
	}
	return validateDomain(a.Domain)
}

// validateLocal validates the local part. Returns error text, or "" if ok.
func validateLocal(local string) string {
	if local == "" {
		return "local part is empty"
	}

	for _, ch := range local {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			continue
		}
		if ch > unicode.MaxASCII || !strings.ContainsRune(localSpecial, ch) {
			return "local part contains invalid character: " + string(ch)
		}
	}

	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "local part cannot start or end with a dot"
	}
	if strings.Contains(local, "..") {
		return "local part cannot contain consecutive dots"
	}
	return ""
}

// validateDomain validates the ASCII (Punycode) form of the domain.
// Returns error text, or "" if ok.
func validateDomain(domain string) string {
	if domain == "" {
		return "domain is empty"
	}
	if len(domain) > 253 {
		return "domain exceeds 253 characters"
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}

	for _, label := range labels {
		if label == "" {
			return "domain contains empty label"
		}
		if len(label) > 63 {
			return "domain label exceeds 63 characters"
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "domain label cannot start or end with a hyphen"
		}
		for _, ch := range label {
			if !(ch >= 'a' && ch <= 'z') && !(ch >= '0' && ch <= '9') && ch != '-' {
				return "domain label contains invalid character: " + string(ch)
			}
		}
	}

	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return "TLD must have at least two characters"
	}
	if strings.Trim(tld, "0123456789") == "" {
		return "TLD cannot be all digits"
	}
	return ""
}
