package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/config"
	"github.com/optimode/emailhealth/internal/csvinput"
	"github.com/optimode/emailhealth/internal/report"
)

func runCheck(args []string) int {
	l := config.NewLoader("emailhealth check")
	out := l.FlagSet().StringP("out", "o", "", "write results as CSV to this file or directory")
	show := l.FlagSet().Int("show", 20, "result rows to print, 0 for none")

	cfg, log, code := load(l, args)
	if cfg == nil {
		return code
	}
	if len(l.Args()) != 1 {
		pterm.Error.Println("expected exactly one CSV file")
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	path := l.Args()[0]

	ext, err := readInput(path, cfg.Input)
	if err != nil {
		pterm.Error.Println(err)
		return 1
	}
	printInput(path, ext)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar, _ := pterm.DefaultProgressbar.
		WithTotal(len(ext.Addresses)).
		WithTitle("Validating").
		WithRemoveWhenDone().
		Start()
	v := emailhealth.New().WithOptions(cfg.Validation).WithLogger(log)
	br, err := v.ValidateBatch(ctx, ext.Addresses, emailhealth.BatchOptions{
		OnProgress: func(p emailhealth.Progress) {
			bar.UpdateTitle("Validating " + p.Last.Address)
			bar.Increment()
		},
	})
	_, _ = bar.Stop()
	if err != nil {
		pterm.Error.Println(err)
		return 1
	}

	if !br.Completed {
		pterm.Warning.Printfln("Interrupted: %d of %d addresses processed", br.Summary.Processed, br.Summary.Total)
	}

	rep := report.Build(br)
	printResults(br.Results, *show)
	printReport(rep, br.Duration)

	if *out != "" {
		dst, err := writeResults(*out, br)
		if err != nil {
			pterm.Error.Println(err)
			return 1
		}
		pterm.Success.Printfln("Results written to %s", dst)
	}

	if !br.Completed {
		return 130
	}
	return 0
}

// readInput extracts addresses from the CSV at path.
func readInput(path string, in config.Input) (*csvinput.Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvinput.Extract(f, csvinput.Options{Column: in.Column, Dedupe: in.Dedupe})
}

// writeResults writes the CSV export. A directory destination gets a
// timestamped file name.
func writeResults(dst string, br *emailhealth.BatchReport) (string, error) {
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		dst = filepath.Join(dst, report.CSVFilename(time.Now()))
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	if err := report.WriteCSV(f, br.Results); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, f.Close()
}
