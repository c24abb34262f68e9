package emailhealth

import "github.com/optimode/emailhealth/types"

// BatchSummary aggregates the results of one run.
type BatchSummary struct {
	Total       int                  `json:"total"`
	Processed   int                  `json:"processed"`
	Valid       int                  `json:"valid"`
	Invalid     int                  `json:"invalid"`
	Unknown     int                  `json:"unknown"`
	HealthRatio float64              `json:"health_ratio"`
	Reasons     map[types.Reason]int `json:"reasons"`
}

// HealthRatio is valid/processed, or 0 when nothing was processed.
func HealthRatio(valid, processed int) float64 {
	if processed == 0 {
		return 0
	}
	return float64(valid) / float64(processed)
}

// Summarize counts results. total is the size of the input, which is larger
// than len(results) for a cancelled run.
func Summarize(total int, results []types.ValidationResult) BatchSummary {
	s := BatchSummary{
		Total:     total,
		Processed: len(results),
		Reasons:   make(map[types.Reason]int),
	}
	for _, r := range results {
		switch r.Status {
		case types.StatusValid:
			s.Valid++
		case types.StatusInvalid:
			s.Invalid++
		default:
			s.Unknown++
		}
		s.Reasons[r.Reason]++
	}
	s.HealthRatio = HealthRatio(s.Valid, s.Processed)
	return s
}
