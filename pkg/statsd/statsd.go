// Package statsd wraps the statsd client used for query engine metrics. The datadog dependency is
// kept behind this file so the backend can be swapped without touching call sites.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const namespace = "archquery"

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// Incr increments a counter. Failures are logged and otherwise ignored.
func Incr(name string, tags ...string) {
	if err := Client().Incr(name, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit counter")
	}
}

// EmitTiming records the time elapsed since start under name.
func EmitTiming(name string, start time.Time, tags ...string) {
	if err := Client().Timing(name, time.Since(start), tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit timing")
	}
}

// Init replaces the no-op client with one sending to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace(namespace),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}

// Close flushes and closes the current client and restores the no-op client.
func Close() error {
	current := client
	client = &ddstatsd.NoOpClient{}
	return eris.Wrap(current.Close(), "failed to close statsd client")
}
