// Package cmd holds the archquery command line.
package cmd

import (
	"github.com/argus-labs/archquery/pkg/telemetry"
	"github.com/argus-labs/archquery/pkg/world"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

const serviceName = "archquery"

// rootOptions are the flags shared by every command.
type rootOptions struct {
	logLevel  string
	logFormat string
	tel       telemetry.Telemetry
}

// NewRootCmd creates the archquery root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "archquery",
		Short: "Compile archetype queries against declarative world scenarios",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format := telemetry.ParseLogFormat(opts.logFormat)
			if opts.logFormat != "" && format == telemetry.LogFormatUndefined {
				return eris.Errorf("invalid log format %q: must be json or pretty", opts.logFormat)
			}
			tel, err := telemetry.NewWithWriter(telemetry.Options{
				ServiceName: serviceName,
				LogLevel:    opts.logLevel,
				LogFormat:   format,
			}, cmd.ErrOrStderr())
			if err != nil {
				return eris.Wrap(err, "failed to set up telemetry")
			}
			opts.tel = tel
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return opts.tel.Shutdown()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides ARCHQUERY_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json|pretty), overrides ARCHQUERY_LOG_FORMAT")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))

	return cmd
}

// newWorld creates a world configured from the environment.
func (o *rootOptions) newWorld() (*world.World, error) {
	w, err := world.NewFromEnv(o.tel.GetLogger("world"))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create world")
	}
	return w, nil
}
