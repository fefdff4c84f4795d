// Package telemetry sets up logging and metrics for archquery processes.
package telemetry

import (
	"io"
	"os"

	"github.com/argus-labs/archquery/pkg/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Telemetry struct {
	Logger      zerolog.Logger
	serviceName string
	statsd      bool
}

// New loads the telemetry configuration from the environment, applies opts on top, and sets up the
// logger and the statsd client. Logs are written to stderr.
func New(opts Options) (Telemetry, error) {
	return NewWithWriter(opts, os.Stderr)
}

// NewWithWriter is New with a custom log destination.
func NewWithWriter(opts Options, out io.Writer) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load telemetry config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	t := Telemetry{
		Logger:      newLogger(options, out),
		serviceName: options.ServiceName,
	}
	if options.StatsdAddress != "" {
		if err := statsd.Init(options.StatsdAddress, options.StatsdTags); err != nil {
			return Telemetry{}, eris.Wrap(err, "failed to init statsd")
		}
		t.statsd = true
	}
	return t, nil
}

// Shutdown flushes the metrics client.
func (t *Telemetry) Shutdown() error {
	if !t.statsd {
		return nil
	}
	t.statsd = false
	return statsd.Close()
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}
