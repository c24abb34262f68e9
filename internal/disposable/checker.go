// Package disposable knows the domains of throw-away mailbox providers.
// Such addresses often pass every SMTP check and still never reach a person.
package disposable

import "strings"

// IsDisposable reports whether domain, or any parent of it, is a known
// disposable provider.
func IsDisposable(domain string) bool {
	d := strings.TrimSuffix(strings.ToLower(domain), ".")
	for d != "" {
		if _, ok := disposableSet[d]; ok {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return false
}

// Len returns the number of listed domains.
func Len() int {
	return len(disposableSet)
}
