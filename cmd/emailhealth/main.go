// Command emailhealth validates email lists from the terminal or serves the
// validation API over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/optimode/emailhealth/internal/config"
	"github.com/optimode/emailhealth/internal/logging"
)

// Set with -ldflags at build time.
var version = "dev"

const usage = `Usage:
  emailhealth check [flags] <file.csv>   validate the addresses in a CSV file
  emailhealth serve [flags]              start the HTTP API
  emailhealth version                    print the version

Run "emailhealth <command> --help" for the flags of a command.`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "check":
		return runCheck(args[1:])
	case "serve":
		return runServe(args[1:])
	case "version", "--version":
		fmt.Println("emailhealth", version)
		return 0
	case "help", "-h", "--help":
		fmt.Println(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", args[0], usage)
		return 2
	}
}

// load parses flags and builds the logger shared by every command.
// A nil config with code 0 means help was printed.
func load(l *config.Loader, args []string) (*config.Config, *logrus.Logger, int) {
	cfg, err := l.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil, nil, 0
	}
	if err != nil {
		pterm.Error.Println(err)
		return nil, nil, 2
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		pterm.Error.Println(err)
		return nil, nil, 2
	}
	return &cfg, log, 0
}
