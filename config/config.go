// Package config loads the vending binary's settings from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	// ErrInvalidConfig is returned when a parsed value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

//nolint:gochecknoglobals
var defaultEnvLoaded sync.Once

// Config holds every setting the vending binary reads from its environment.
type Config struct {
	// CatalogPath points at a YAML catalog; empty means the built-in one.
	CatalogPath string `env:"VENDING_CATALOG"`
	// MachineID names the machine in logs and metrics; empty means a random UUID.
	MachineID string `env:"VENDING_MACHINE_ID"`
	// Currency is the ISO 4217 code used to display amounts.
	Currency string `env:"VENDING_CURRENCY"     envDefault:"USD"`
	// Language is the BCP 47 tag used to format amounts.
	Language string `env:"VENDING_LANG"         envDefault:"en"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `env:"VENDING_METRICS_ADDR"`
	// NoBanner suppresses the startup banner.
	NoBanner bool `env:"VENDING_NO_BANNER"    envDefault:"false"`

	Log       Log
	Telemetry telemetry.Config
}

// Log holds logging settings.
type Log struct {
	JSON   bool   `env:"LOG_JSON"   envDefault:"false"`
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Output string `env:"LOG_OUTPUT" envDefault:"stdout"`
}

// Load reads .env from the working directory (once, if present) and parses the
// process environment into a Config. Variables already set in the process win
// over .env values.
func Load() (Config, error) {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	return parse(env.Options{})
}

// LoadFile is like Load but reads the given dotenv file, which must exist.
// Variables already set in the process still win.
func LoadFile(path string) (Config, error) {
	fileVals, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read env file %q: %w", path, err)
	}

	merged := make(map[string]string, len(fileVals))
	for k, v := range fileVals {
		merged[k] = v
	}

	for k, v := range env.ToMap(os.Environ()) {
		merged[k] = v
	}

	return parse(env.Options{Environment: merged})
}

// FromMap parses a Config from vars alone, ignoring the process environment.
func FromMap(vars map[string]string) (Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}

	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config

	if err := env.ParseWithOptions(&cfg, opts); err != nil { //nolint:noinlineerr
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.Validate(); err != nil { //nolint:noinlineerr
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that parse but make no sense.
func (c Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if _, err := logger.ParseOutput(c.Log.Output); err != nil {
		errs = append(errs, err)
	}

	if c.Telemetry.Timeout < 0 {
		errs = append(errs, fmt.Errorf("OTEL_EXPORTER_OTLP_TIMEOUT must not be negative: %s", c.Telemetry.Timeout))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}

// LoggerOptions translates the log settings into logger options. The values
// were checked by Validate.
func (l Log) LoggerOptions() []logger.Option {
	level, _ := logger.ParseLevel(l.Level)
	output, _ := logger.ParseOutput(l.Output)

	return []logger.Option{
		logger.WithJSON(l.JSON),
		logger.WithLevel(level),
		logger.WithOutput(output),
	}
}
