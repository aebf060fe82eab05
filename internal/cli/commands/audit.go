package commands

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/sugar/internal/compiler/build"
)

// NewAuditCommand creates the audit command
func NewAuditCommand(g *globalFlags) *cobra.Command {
	var (
		jsonOut    bool
		output     string
		failOnFlag bool
	)

	cmd := &cobra.Command{
		Use:   "audit [files or directories...]",
		Short: "Report what every macro expansion generated",
		Long: `Expand the given files and report every expansion: the macro, the
package it comes from, the original and the generated code.

Expansions generating code that loads plugins, calls through reflection,
reads the environment or starts processes are flagged, as are hygiene
escapes. The JSON document carries no timestamps, so it can be diffed
between runs in CI.`,
		Example: `  # Print flagged expansions
  sugar audit .

  # Write the audit document for CI and fail on any flag
  sugar audit . --json --output audit.json --fail-on-flag`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(g)
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if _, _, err := build.NewCoordinator(s.transformer, s.logger).Build(files); err != nil {
				return err
			}

			tr := s.transformer.Tracker()
			var data []byte
			if jsonOut {
				if data, err = tr.ToAuditJSON(); err != nil {
					return errors.Wrap(err, "failed to encode audit")
				}
				data = append(data, '\n')
			} else {
				data = []byte(tr.GenerateAuditReport())
			}

			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return errors.Wrapf(err, "failed to write %s", output)
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Audit written to %s\n", output)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), string(data))
			}

			if flagged := tr.BuildAudit().FlaggedCount; failOnFlag && flagged > 0 {
				return errors.Newf("%d flagged expansion(s)", flagged)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the audit document as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the audit to a file")
	cmd.Flags().BoolVar(&failOnFlag, "fail-on-flag", false, "Exit with an error when any expansion is flagged")

	return cmd
}
