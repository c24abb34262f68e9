package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/optimode/emailhealth/types"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"email", "domain", "status", "reason", "detail", "mx_host", "smtp_code"}

// WriteCSV writes one row per result, in the given order.
func WriteCSV(w io.Writer, results []types.ValidationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		host, code := "", ""
		if last, ok := r.LastAttempt(); ok {
			host = last.Host
			if last.Code != 0 {
				code = strconv.Itoa(last.Code)
			}
		}
		row := []string{r.Address, r.Domain, string(r.Status), string(r.Reason), r.Detail, host, code}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename names a results download after the time it was produced.
func CSVFilename(t time.Time) string {
	return "email_validation_results_" + t.Format("20060102_150405") + ".csv"
}
