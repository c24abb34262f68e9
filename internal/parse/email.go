// Package parse splits candidate address strings into their parts.
package parse

import (
	"strings"

	"golang.org/x/net/idna"
)

// Address is the internal representation of a candidate address.
// The check/ package and the engine receive this as parameter.
type Address struct {
	Raw           string // the input as given
	Normalized    string // trimmed and lower-cased
	Local         string // the part before @
	Domain        string // the part after @, ASCII/Punycode form (for DNS/SMTP)
	DomainUnicode string // the part after @, Unicode form (for display)
	Valid         bool   // false if the input cannot be split into local@domain
}

// NewAddress normalizes raw and splits it into local part and domain.
// Valid is false when the input does not contain exactly one "@" with
// non-empty sides, or when the domain fails IDNA2008 conversion.
// Normalized is always populated.
func NewAddress(raw string) Address {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	a := Address{Raw: raw, Normalized: normalized}

	if strings.Count(normalized, "@") != 1 {
		return a
	}
	atIdx := strings.IndexByte(normalized, '@')
	local, domain := normalized[:atIdx], normalized[atIdx+1:]
	if local == "" || domain == "" {
		return a
	}

	asciiDomain, unicodeDomain, ok := convertDomain(domain)
	if !ok {
		return a
	}

	a.Local = local
	a.Domain = asciiDomain
	a.DomainUnicode = unicodeDomain
	a.Valid = true
	return a
}

// DomainOf returns the lower-cased text after the last "@", or "".
// It does not validate anything and is meant for grouping and display.
func DomainOf(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// convertDomain converts a domain to both ASCII/Punycode and Unicode forms.
// Returns (ascii, unicode, ok). ok is false if the domain contains
// non-ASCII characters that fail IDNA2008 validation.
func convertDomain(domain string) (ascii, unicode string, ok bool) {
	hasNonASCII := false
	for _, r := range domain {
		if r > 127 {
			hasNonASCII = true
			break
		}
	}

	if hasNonASCII {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return "", "", false
		}
		return a, domain, true
	}

	// existing Punycode like xn--mnchen-3ya.de is decoded for display only
	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}
