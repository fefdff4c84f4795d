package telemetry

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Config struct {
	// Log level configuration ("trace", "debug", "info", "warn", "error").
	LogLevel string `env:"ARCHQUERY_LOG_LEVEL" envDefault:"info"`

	// Log format configuration ("json", "pretty").
	LogFormat string `env:"ARCHQUERY_LOG_FORMAT" envDefault:"json"`

	// StatsdAddress is the statsd agent address. Metrics are dropped when empty.
	StatsdAddress string `env:"ARCHQUERY_STATSD_ADDRESS"`

	// StatsdTags are attached to every metric.
	StatsdTags []string `env:"ARCHQUERY_STATSD_TAGS" envSeparator:","`
}

// loadConfig loads the configuration from environment variables.
func loadConfig() (Config, error) {
	cfg := Config{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}

	return cfg, nil
}

// validate performs validation on the loaded configuration.
func (cfg *Config) validate() error {
	if err := checkLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if ParseLogFormat(cfg.LogFormat) == LogFormatUndefined {
		return eris.Errorf("invalid log format %q: must be json or pretty", cfg.LogFormat)
	}

	return nil
}

func (cfg *Config) applyToOptions(opt *Options) {
	opt.LogLevel = cfg.LogLevel
	opt.LogFormat = ParseLogFormat(cfg.LogFormat)
	opt.StatsdAddress = cfg.StatsdAddress
	opt.StatsdTags = cfg.StatsdTags
}

type Options struct {
	ServiceName   string // Name of the service, added to every log line
	LogLevel      string
	LogFormat     LogFormat // Log output format
	StatsdAddress string
	StatsdTags    []string
}

func newDefaultOptions() Options {
	// Set these to invalid values to force users to pass in the correct options.
	return Options{
		ServiceName: "",
		LogLevel:    "",
		LogFormat:   LogFormatUndefined,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.ServiceName != "" {
		opt.ServiceName = newOpt.ServiceName
	}
	if newOpt.LogLevel != "" {
		opt.LogLevel = newOpt.LogLevel
	}
	if newOpt.LogFormat != LogFormatUndefined {
		opt.LogFormat = newOpt.LogFormat
	}
	if newOpt.StatsdAddress != "" {
		opt.StatsdAddress = newOpt.StatsdAddress
	}
	if newOpt.StatsdTags != nil {
		opt.StatsdTags = newOpt.StatsdTags
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	if err := checkLogLevel(opt.LogLevel); err != nil {
		return err
	}
	if opt.LogFormat == LogFormatUndefined {
		return eris.New("log format must be specified")
	}
	return nil
}

// LogFormat represents the log output format.
type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota // Used as the zero value
	LogFormatJSON                       // Outputs structured JSON logs
	LogFormatPretty                     // Outputs human-readable console logs
)

var logFormatNames = [...]string{
	LogFormatUndefined: "undefined",
	LogFormatJSON:      "json",
	LogFormatPretty:    "pretty",
}

func (f LogFormat) String() string {
	if int(f) < len(logFormatNames) {
		return logFormatNames[f]
	}
	return logFormatNames[LogFormatUndefined]
}

// ParseLogFormat converts a case-insensitive format name. Unknown names map to LogFormatUndefined.
func ParseLogFormat(s string) LogFormat {
	for f, name := range logFormatNames {
		if f != int(LogFormatUndefined) && strings.EqualFold(s, name) {
			return LogFormat(f) //nolint:gosec // index of a small array
		}
	}
	return LogFormatUndefined
}

// checkLogLevel returns an error unless level is a zerolog level name.
func checkLogLevel(level string) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
		return eris.Errorf("invalid log level %q: must be trace, debug, info, warn, or error", level)
	}
	return nil
}
