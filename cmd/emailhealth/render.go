package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/csvinput"
	"github.com/optimode/emailhealth/internal/report"
	"github.com/optimode/emailhealth/types"
)

func printInput(path string, ext *csvinput.Extraction) {
	pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Println("Email List Health Check")
	pterm.Println()

	info := fmt.Sprintf("File: %s\n", pterm.Cyan(filepath.Base(path)))
	info += fmt.Sprintf("Column: %s\n", pterm.Cyan(ext.Column))
	info += fmt.Sprintf("Rows: %d\n", ext.Rows)
	info += fmt.Sprintf("Addresses: %s", pterm.Green(strconv.Itoa(len(ext.Addresses))))
	if ext.Duplicates > 0 {
		info += fmt.Sprintf("\nDuplicates removed: %s", pterm.Yellow(strconv.Itoa(ext.Duplicates)))
	}
	if ext.Empty > 0 {
		info += fmt.Sprintf("\nEmpty cells: %d", ext.Empty)
	}
	pterm.DefaultBox.
		WithTitle("Input").
		WithTitleTopCenter().
		WithLeftPadding(4).
		WithRightPadding(4).
		WithBoxStyle(pterm.NewStyle(pterm.FgCyan)).
		Println(info)

	stats := csvinput.Stats(ext.Addresses)
	if len(stats.Top) > 1 {
		pterm.DefaultSection.WithLevel(2).Printfln("Top domains (%d total)", stats.TotalDomains)
		data := pterm.TableData{{"Domain", "Addresses"}}
		for _, d := range stats.Top {
			data = append(data, []string{d.Domain, strconv.Itoa(d.Count)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	}
	pterm.Println()
}

func styleStatus(s types.Status) string {
	switch s {
	case types.StatusValid:
		return pterm.Green(string(s))
	case types.StatusInvalid:
		return pterm.Red(string(s))
	default:
		return pterm.Yellow(string(s))
	}
}

// printResults shows the first n results.
func printResults(results []emailhealth.ValidationResult, n int) {
	if n <= 0 || len(results) == 0 {
		return
	}
	pterm.DefaultSection.Println("Results")
	data := pterm.TableData{{"Email", "Status", "Reason", "Detail"}}
	for i, r := range results {
		if i == n {
			break
		}
		data = append(data, []string{r.Address, styleStatus(r.Status), string(r.Reason), r.Detail})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	if len(results) > n {
		pterm.FgGray.Printfln("... %d more, use --out to export all results", len(results)-n)
	}
	pterm.Println()
}

func printReport(rep report.Report, elapsed time.Duration) {
	s := rep.Summary
	pterm.DefaultSection.Println("Summary")

	body := fmt.Sprintf("Total: %d\n", s.Total)
	if s.Processed != s.Total {
		body += fmt.Sprintf("Processed: %s\n", pterm.Yellow(strconv.Itoa(s.Processed)))
	}
	body += fmt.Sprintf("Valid: %s\n", pterm.Green(strconv.Itoa(s.Valid)))
	body += fmt.Sprintf("Invalid: %s\n", pterm.Red(strconv.Itoa(s.Invalid)))
	body += fmt.Sprintf("Unknown: %s\n", pterm.Yellow(strconv.Itoa(s.Unknown)))
	body += fmt.Sprintf("Health: %.1f%%\n", s.HealthRatio*100)
	body += fmt.Sprintf("Duration: %s", elapsed.Round(time.Millisecond))

	style := pterm.NewStyle(pterm.FgGreen)
	switch rep.Category {
	case report.Good:
		style = pterm.NewStyle(pterm.FgYellow)
	case report.Poor:
		style = pterm.NewStyle(pterm.FgRed)
	}
	pterm.DefaultBox.
		WithTitle("Email Health").
		WithTitleTopCenter().
		WithLeftPadding(4).
		WithRightPadding(4).
		WithBoxStyle(style).
		Println(body)

	switch rep.Category {
	case report.Excellent:
		pterm.Success.Println(rep.Headline)
	case report.Good:
		pterm.Warning.Println(rep.Headline)
	default:
		pterm.Error.Println(rep.Headline)
	}

	if len(rep.CommonReasons) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Most common issues")
		data := pterm.TableData{{"Reason", "Count"}}
		for _, rc := range rep.CommonReasons {
			data = append(data, []string{string(rc.Reason), strconv.Itoa(rc.Count)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	}

	if len(rep.Domains) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Domains")
		data := pterm.TableData{{"Domain", "Addresses", "Valid", "Rating"}}
		for _, d := range rep.Domains {
			data = append(data, []string{d.Domain, strconv.Itoa(d.Count), fmt.Sprintf("%.0f%%", d.ValidRate*100), string(d.Rating)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	}

	if len(rep.Typos) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Possible typos")
		for _, t := range rep.Typos {
			pterm.Warning.Printfln("%s (%d) looks like %s", t.Domain, t.Count, t.Suggestion)
		}
	}

	pterm.DefaultSection.WithLevel(2).Println("Recommendations")
	items := make([]pterm.BulletListItem, 0, len(rep.Recommendations))
	for _, r := range rep.Recommendations {
		items = append(items, pterm.BulletListItem{Level: 0, Text: r})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}
