package cmd

import (
	"fmt"

	"github.com/argus-labs/archquery/pkg/scenario"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var profileModes = map[string]func(*profile.Profile){
	"cpu":   profile.CPUProfile,
	"mem":   profile.MemProfileAllocs,
	"trace": profile.TraceProfile,
}

func newRunCmd(rootOpts *rootOptions) *cobra.Command {
	var (
		describe   bool
		profileKey string
		profileDir string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Populate a world from a scenario and report on its queries",
		Long: `Load a YAML or JSON scenario, create its entity populations, compile its queries,
and print a JSON report with the matching archetypes, chunks, and entities of each query.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			if profileKey != "" {
				mode, ok := profileModes[profileKey]
				if !ok {
					return eris.Errorf("unknown profile %q: must be cpu, mem, or trace", profileKey)
				}
				defer profile.Start(mode, profile.ProfilePath(profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
			}

			w, err := rootOpts.newWorld()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := w.Close(); closeErr != nil && err == nil {
					err = eris.Wrap(closeErr, "failed to close world")
				}
			}()

			report, err := scenario.NewRunner(w, rootOpts.tel.GetLogger("scenario"), describe).Run(s)
			if err != nil {
				return err
			}
			data, err := report.JSON()
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return eris.Errorf("expectations failed for queries %v", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&describe, "describe", false, "include the full description of every query")
	cmd.Flags().StringVar(&profileKey, "profile", "", "profile the run (cpu|mem|trace)")
	cmd.Flags().StringVar(&profileDir, "profile-dir", ".", "directory for profile output")

	return cmd
}
