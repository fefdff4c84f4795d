package cmd

import (
	"fmt"

	"github.com/argus-labs/archquery/pkg/scenario"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// validationResult is printed when a scenario compiles.
type validationResult struct {
	Scenario string `json:"scenario"`
	Valid    bool   `json:"valid"`
	Queries  int    `json:"queries"`
}

func newValidateCmd(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Check a scenario and compile its queries without creating entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := scenario.Load(args[0])
			if err != nil {
				return err
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

			runner := scenario.NewRunner(w, rootOpts.tel.GetLogger("scenario"), false)
			if err := runner.Validate(s); err != nil {
				return err
			}

			data, err := json.Marshal(validationResult{Scenario: s.Name, Valid: true, Queries: len(s.Queries)})
			if err != nil {
				return eris.Wrap(err, "failed to encode result")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
