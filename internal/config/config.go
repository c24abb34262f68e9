// Package config assembles the runtime configuration of the emailhealth
// binary. Sources are applied in order, later ones winning:
// defaults, YAML file, .env file, process environment, command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/optimode/emailhealth"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "EMAILHEALTH_"

// ErrInvalidConfig is returned when the assembled configuration is unusable.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Validation emailhealth.Options `yaml:"validation"`
	Input      Input               `yaml:"input"`
	Server     Server              `yaml:"server"`
	Log        Log                 `yaml:"log"`
}

// Input controls how addresses are read from CSV files.
type Input struct {
	Column string `yaml:"column"`
	Dedupe bool   `yaml:"dedupe"`
}

type Server struct {
	Addr string `yaml:"addr" validate:"required"`
	// Retention is how long finished runs stay queryable.
	Retention   time.Duration `yaml:"retention" validate:"gt=0"`
	MaxUploadMB int           `yaml:"max_upload_mb" validate:"min=1,max=1024"`
	SentryDSN   string        `yaml:"sentry_dsn" validate:"omitempty,url"`
	Environment string        `yaml:"environment"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Validation: emailhealth.DefaultOptions(),
		Input:      Input{Dedupe: true},
		Server: Server{
			Addr:        ":8080",
			Retention:   time.Hour,
			MaxUploadMB: 20,
			Environment: "development",
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Loader owns the flag set so callers can add their own flags and read
// positional arguments after Load.
type Loader struct {
	fs *pflag.FlagSet

	configPath string
	envFile    string

	probeTimeout time.Duration
	dnsTimeout   time.Duration
	maxMXHosts   int
	workers      int
	mailFrom     string
	heloDomain   string
	port         string
	noFallback   bool
	nameservers  []string
	proxyURL     string
	column       string
	noDedupe     bool
	addr         string
	retention    time.Duration
	sentryDSN    string
	logLevel     string
	logFormat    string
}

// NewLoader registers the configuration flags on a new flag set.
func NewLoader(name string) *Loader {
	l := &Loader{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	def := Default()

	f := l.fs
	f.StringVarP(&l.configPath, "config", "c", "", "YAML configuration file (env: EMAILHEALTH_CONFIG)")
	f.StringVar(&l.envFile, "env-file", ".env", "dotenv file with EMAILHEALTH_* variables")

	f.DurationVar(&l.probeTimeout, "timeout", def.Validation.ProbeTimeout, "SMTP probe timeout per host")
	f.DurationVar(&l.dnsTimeout, "dns-timeout", def.Validation.DNSTimeout, "DNS resolution timeout per domain")
	f.IntVar(&l.maxMXHosts, "max-mx", def.Validation.MaxMXHosts, "mail hosts to try per address")
	f.IntVarP(&l.workers, "workers", "w", def.Validation.Workers, "concurrent probes (max 50)")
	f.StringVar(&l.mailFrom, "mail-from", def.Validation.MailFrom, "envelope sender for MAIL FROM")
	f.StringVar(&l.heloDomain, "helo", def.Validation.HeloDomain, "name announced in EHLO/HELO")
	f.StringVar(&l.port, "smtp-port", def.Validation.Port, "SMTP port")
	f.BoolVar(&l.noFallback, "no-host-fallback", false, "do not treat MX-less domains as their own mail host")
	f.StringSliceVar(&l.nameservers, "nameserver", nil, "DNS server to query (repeatable, default: resolv.conf)")
	f.StringVar(&l.proxyURL, "proxy", "", "SOCKS5 proxy for SMTP connections, e.g. socks5://127.0.0.1:1080")

	f.StringVar(&l.column, "column", "", "CSV column holding addresses (default: auto-detect)")
	f.BoolVar(&l.noDedupe, "keep-duplicates", false, "validate repeated addresses again")

	f.StringVar(&l.addr, "addr", def.Server.Addr, "HTTP listen address")
	f.DurationVar(&l.retention, "retention", def.Server.Retention, "how long finished runs are kept")
	f.StringVar(&l.sentryDSN, "sentry-dsn", "", "Sentry DSN for error reporting")

	f.StringVar(&l.logLevel, "log-level", def.Log.Level, "log level: debug, info, warn, error")
	f.StringVar(&l.logFormat, "log-format", def.Log.Format, "log format: text or json")
	return l
}

// FlagSet returns the underlying flag set.
func (l *Loader) FlagSet() *pflag.FlagSet {
	return l.fs
}

// Args returns the positional arguments left after Load parsed the flags.
func (l *Loader) Args() []string {
	return l.fs.Args()
}

// Load parses args and assembles the configuration.
func (l *Loader) Load(args []string) (Config, error) {
	if err := l.fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path := l.configPath
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	dotenv, err := godotenv.Read(l.envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", l.envFile, err)
	}
	getenv := func(key string) string {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v
		}
		return dotenv[EnvPrefix+key]
	}
	if err := loadFromEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	l.applyFlags(&cfg)
	normalize(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadFromEnv reads EMAILHEALTH_* variables through getenv.
func loadFromEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	o := &cfg.Validation
	duration("PROBE_TIMEOUT", &o.ProbeTimeout)
	duration("DNS_TIMEOUT", &o.DNSTimeout)
	integer("MAX_MX_HOSTS", &o.MaxMXHosts)
	integer("WORKERS", &o.Workers)
	str("MAIL_FROM", &o.MailFrom)
	str("HELO_DOMAIN", &o.HeloDomain)
	str("SMTP_PORT", &o.Port)
	boolean("DISABLE_HOST_FALLBACK", &o.DisableHostFallback)
	if v := getenv("NAMESERVERS"); v != "" {
		o.Nameservers = splitList(v)
	}
	str("PROXY_URL", &o.ProxyURL)

	str("CSV_COLUMN", &cfg.Input.Column)
	boolean("DEDUPE", &cfg.Input.Dedupe)

	str("ADDR", &cfg.Server.Addr)
	duration("RETENTION", &cfg.Server.Retention)
	integer("MAX_UPLOAD_MB", &cfg.Server.MaxUploadMB)
	str("SENTRY_DSN", &cfg.Server.SentryDSN)
	str("ENVIRONMENT", &cfg.Server.Environment)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// applyFlags copies explicitly set flags over cfg.
func (l *Loader) applyFlags(cfg *Config) {
	set := func(name string) bool { return l.fs.Changed(name) }
	o := &cfg.Validation

	if set("timeout") {
		o.ProbeTimeout = l.probeTimeout
	}
	if set("dns-timeout") {
		o.DNSTimeout = l.dnsTimeout
	}
	if set("max-mx") {
		o.MaxMXHosts = l.maxMXHosts
	}
	if set("workers") {
		o.Workers = l.workers
	}
	if set("mail-from") {
		o.MailFrom = l.mailFrom
	}
	if set("helo") {
		o.HeloDomain = l.heloDomain
	}
	if set("smtp-port") {
		o.Port = l.port
	}
	if set("no-host-fallback") {
		o.DisableHostFallback = l.noFallback
	}
	if set("nameserver") {
		o.Nameservers = l.nameservers
	}
	if set("proxy") {
		o.ProxyURL = l.proxyURL
	}
	if set("column") {
		cfg.Input.Column = l.column
	}
	if set("keep-duplicates") {
		cfg.Input.Dedupe = !l.noDedupe
	}
	if set("addr") {
		cfg.Server.Addr = l.addr
	}
	if set("retention") {
		cfg.Server.Retention = l.retention
	}
	if set("sentry-dsn") {
		cfg.Server.SentryDSN = l.sentryDSN
	}
	if set("log-level") {
		cfg.Log.Level = l.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = l.logFormat
	}
}

func normalize(cfg *Config) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Validation.MailFrom = strings.TrimSpace(cfg.Validation.MailFrom)
	cfg.Validation.HeloDomain = strings.ToLower(strings.TrimSpace(cfg.Validation.HeloDomain))
	cfg.Input.Column = strings.TrimSpace(cfg.Input.Column)

	ns := cfg.Validation.Nameservers[:0]
	for _, s := range cfg.Validation.Nameservers {
		if s = strings.TrimSpace(s); s != "" {
			ns = append(ns, s)
		}
	}
	cfg.Validation.Nameservers = ns
	if len(ns) == 0 {
		cfg.Validation.Nameservers = nil
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section of cfg.
func Validate(cfg Config) error {
	if err := cfg.Validation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validate.Struct(cfg.Server); err != nil {
		return fmt.Errorf("%w: server: %w", ErrInvalidConfig, err)
	}
	if err := validate.Struct(cfg.Log); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
