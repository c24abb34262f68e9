// Package report turns a finished batch into the advice shown to users:
// a health category, recommendations, the most common failure reasons,
// a per-domain breakdown and likely domain typos.
package report

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/disposable"
	"github.com/optimode/emailhealth/types"
)

// Category buckets a health ratio.
type Category string

const (
	Excellent Category = "excellent"
	Good      Category = "good"
	Poor      Category = "poor"
)

// Categorize maps a health ratio in [0,1] to a Category.
func Categorize(ratio float64) Category {
	switch {
	case ratio >= 0.95:
		return Excellent
	case ratio >= 0.70:
		return Good
	default:
		return Poor
	}
}

// Headline is a one-line verdict for the category.
func (c Category) Headline() string {
	switch c {
	case Excellent:
		return "Excellent email health! Your list is in outstanding condition."
	case Good:
		return "Good email health, with room for improvement."
	default:
		return "Poor email health. Immediate action required."
	}
}

// Recommendations returns what to do next for the category.
func (c Category) Recommendations() []string {
	switch c {
	case Excellent:
		return []string{
			"Continue regular email validation to maintain high quality",
			"Monitor engagement rates to identify potential issues early",
			"Consider implementing double opt-in for new subscribers",
		}
	case Good:
		return []string{
			"Remove invalid emails to improve deliverability",
			"Implement email verification at the point of collection",
			"Consider re-engagement campaigns for inactive subscribers",
		}
	default:
		return []string{
			"Remove all invalid emails immediately",
			"Investigate the source of invalid emails",
			"Implement stricter validation at email collection points",
			"Consider professional email list cleaning services",
		}
	}
}

// ReasonCount is how often a reason explains a non-valid result.
type ReasonCount struct {
	Reason types.Reason `json:"reason"`
	Count  int          `json:"count"`
}

// DomainHealth is the valid rate of one domain.
type DomainHealth struct {
	Domain    string   `json:"domain"`
	Count     int      `json:"count"`
	Valid     int      `json:"valid"`
	ValidRate float64  `json:"valid_rate"`
	Rating    Category `json:"rating"`
}

// TypoSuggestion flags a domain that is probably a misspelt provider.
type TypoSuggestion struct {
	Domain     string `json:"domain"`
	Suggestion string `json:"suggestion"`
	Count      int    `json:"count"`
}

// Report is the full analysis of one batch.
type Report struct {
	Summary         emailhealth.BatchSummary `json:"summary"`
	Completed       bool                     `json:"completed"`
	Category        Category                 `json:"category"`
	Headline        string                   `json:"headline"`
	Recommendations []string                 `json:"recommendations"`
	CommonReasons   []ReasonCount            `json:"common_reasons"`
	Domains         []DomainHealth           `json:"domains"`
	Typos           []TypoSuggestion         `json:"typos,omitempty"`
	Disposable      int                      `json:"disposable"`
}

// Build analyses a batch report.
func Build(br *emailhealth.BatchReport) Report {
	cat := Categorize(br.Summary.HealthRatio)
	r := Report{
		Summary:         br.Summary,
		Completed:       br.Completed,
		Category:        cat,
		Headline:        cat.Headline(),
		Recommendations: cat.Recommendations(),
		CommonReasons:   CommonReasons(br.Results, 5),
		Domains:         Domains(br.Results, 5),
		Typos:           Typos(br.Results, DefaultTypoThreshold),
	}

	for _, res := range br.Results {
		if disposable.IsDisposable(res.Domain) {
			r.Disposable++
		}
	}
	if r.Disposable > 0 {
		r.Recommendations = append(r.Recommendations, "Remove addresses at disposable mailbox providers")
	}
	if len(r.Typos) > 0 {
		r.Recommendations = append(r.Recommendations, "Review domains that look like misspelt providers")
	}
	return r
}

// CommonReasons counts the reasons of non-valid results, most common first.
func CommonReasons(results []types.ValidationResult, n int) []ReasonCount {
	counts := make(map[types.Reason]int)
	for _, r := range results {
		if r.Status != types.StatusValid {
			counts[r.Reason]++
		}
	}

	out := make([]ReasonCount, 0, len(counts))
	for _, reason := range types.Reasons {
		if c := counts[reason]; c > 0 {
			out = append(out, ReasonCount{Reason: reason, Count: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Domains returns the n largest domains with their valid rate.
// Domains are rated 90%+ excellent, 70%+ good, otherwise poor.
func Domains(results []types.ValidationResult, n int) []DomainHealth {
	byDomain := make(map[string]*DomainHealth)
	for _, r := range results {
		if r.Domain == "" {
			continue
		}
		d, ok := byDomain[r.Domain]
		if !ok {
			d = &DomainHealth{Domain: r.Domain}
			byDomain[r.Domain] = d
		}
		d.Count++
		if r.Status == types.StatusValid {
			d.Valid++
		}
	}

	out := make([]DomainHealth, 0, len(byDomain))
	for _, d := range byDomain {
		d.ValidRate = float64(d.Valid) / float64(d.Count)
		switch {
		case d.ValidRate >= 0.90:
			d.Rating = Excellent
		case d.ValidRate >= 0.70:
			d.Rating = Good
		default:
			d.Rating = Poor
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DefaultTypoThreshold is the largest edit distance still considered a typo.
const DefaultTypoThreshold = 2

// knownProviders is the list of known major email providers.
// A domain within the typo threshold of one of these is reported.
var knownProviders = []string{
	"gmail.com", "googlemail.com",
	"yahoo.com", "yahoo.co.uk", "yahoo.fr", "yahoo.de",
	"outlook.com", "hotmail.com", "hotmail.co.uk", "live.com",
	"icloud.com", "me.com", "mac.com",
	"protonmail.com", "proton.me",
	"aol.com",
	"zoho.com",
	"yandex.com", "yandex.ru",
	"mail.com",
	"gmx.com", "gmx.net", "gmx.de",
	"fastmail.com",
	"tutanota.com",
}

// SuggestDomain returns the closest known provider within threshold edits
// of domain, or "" if domain is itself a provider or nothing is close.
// Short names allow fewer edits: one per four characters of the shorter of
// the two, so two-letter providers such as qq.com are not read as me.com.
func SuggestDomain(domain string, threshold int) string {
	domain = strings.ToLower(domain)
	bestDist := threshold + 1
	bestMatch := ""

	for _, provider := range knownProviders {
		if domain == provider {
			return "" // exact match, no typo
		}
		limit := min(threshold, min(len(domain), len(provider))/4)
		dist := edlib.LevenshteinDistance(domain, provider)
		if dist <= limit && dist < bestDist {
			bestDist = dist
			bestMatch = provider
		}
	}
	return bestMatch
}

// Typos lists domains in results that look like misspelt providers.
func Typos(results []types.ValidationResult, threshold int) []TypoSuggestion {
	counts := make(map[string]int)
	for _, r := range results {
		if r.Domain != "" {
			counts[r.Domain]++
		}
	}

	var out []TypoSuggestion
	for domain, n := range counts {
		if s := SuggestDomain(domain, threshold); s != "" {
			out = append(out, TypoSuggestion{Domain: domain, Suggestion: s, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}
