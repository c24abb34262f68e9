// Package csvinput pulls candidate addresses out of uploaded CSV files.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/parse"
)

// ErrColumnNotFound is returned when the requested column is not in the header.
var ErrColumnNotFound = errors.New("csvinput: column not found")

// emailKeywords mark a header as likely holding addresses.
var emailKeywords = []string{"email", "mail", "e-mail"}

// Options controls extraction.
type Options struct {
	// Column names the address column. Empty means auto-detect.
	Column string
	// Dedupe drops repeated addresses, keeping the first occurrence.
	Dedupe bool
}

// Extraction is what was found in a file.
type Extraction struct {
	Column           string   `json:"column"`
	Columns          []string `json:"columns"`
	EmailLikeColumns []string `json:"email_like_columns"`
	Rows             int      `json:"rows"`
	Addresses        []string `json:"-"`
	Empty            int      `json:"empty"`
	Duplicates       int      `json:"duplicates"`
}

// Extract reads a CSV with a header row and returns the cleaned cells of the
// address column: trimmed, lower-cased, without empty or "nan" cells.
// Malformed addresses are kept; classifying them is the validator's job.
func Extract(r io.Reader, opts Options) (*Extraction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, emailhealth.ErrNoAddresses
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	ex := &Extraction{Columns: header, EmailLikeColumns: EmailLikeColumns(header)}

	col := -1
	if opts.Column != "" {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(opts.Column)) {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("%w: %q (have %s)", ErrColumnNotFound, opts.Column, strings.Join(header, ", "))
		}
	} else {
		col = DetectColumn(header)
	}
	ex.Column = header[col]

	seen := make(map[string]struct{})
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", ex.Rows+2, err)
		}
		ex.Rows++

		if col >= len(rec) {
			ex.Empty++
			continue
		}
		cell := strings.ToLower(strings.TrimSpace(rec[col]))
		if cell == "" || cell == "nan" {
			ex.Empty++
			continue
		}
		if opts.Dedupe {
			if _, dup := seen[cell]; dup {
				ex.Duplicates++
				continue
			}
			seen[cell] = struct{}{}
		}
		ex.Addresses = append(ex.Addresses, cell)
	}

	if len(ex.Addresses) == 0 {
		return ex, fmt.Errorf("%w in column %q", emailhealth.ErrNoAddresses, ex.Column)
	}
	return ex, nil
}

// EmailLikeColumns returns the headers that mention mail.
func EmailLikeColumns(header []string) []string {
	var out []string
	for _, h := range header {
		lower := strings.ToLower(h)
		for _, kw := range emailKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// DetectColumn returns the index of the first email-like header, or 0.
func DetectColumn(header []string) int {
	for i, h := range header {
		lower := strings.ToLower(h)
		for _, kw := range emailKeywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return 0
}

// DomainCount is one row of a domain distribution.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// DomainStats describes which domains a list is made of.
type DomainStats struct {
	TotalDomains int           `json:"total_domains"`
	Distribution []DomainCount `json:"distribution"`
	Top          []DomainCount `json:"top"`
}

// Stats counts addresses per domain, most common first, ties by name.
func Stats(addresses []string) DomainStats {
	counts := make(map[string]int)
	for _, a := range addresses {
		if d := parse.DomainOf(a); d != "" {
			counts[d]++
		}
	}

	dist := make([]DomainCount, 0, len(counts))
	for d, n := range counts {
		dist = append(dist, DomainCount{Domain: d, Count: n})
	}
	sort.Slice(dist, func(i, j int) bool {
		if dist[i].Count != dist[j].Count {
			return dist[i].Count > dist[j].Count
		}
		return dist[i].Domain < dist[j].Domain
	})

	top := dist
	if len(top) > 10 {
		top = top[:10]
	}
	return DomainStats{TotalDomains: len(dist), Distribution: dist, Top: top}
}
