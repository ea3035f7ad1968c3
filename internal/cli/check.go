package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/galcoord/internal/check"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the built-in consistency suite",
		Long: `Run round-trip, two-step and regression checks over the reference points.

Exit codes:
  0  every check passed or failed at a known singular point
  1  at least one check failed
  2  invalid flags or configuration`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			suite := check.DefaultSuite(cfg.Shape(), cfg.Check.Tolerance)
			rep := check.Run(cmd.Context(), suite, cfg.Workers, rootOpts.logger)

			err := render(cmd.OutOrStdout(), rootOpts.Format, rep, func(w io.Writer) {
				printReport(w, rep, verbose)
			})
			if err != nil {
				return err
			}
			if !rep.OK() {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d checks failed", rep.Failed, len(rep.Results)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every check, not only failures")
	return cmd
}

func printReport(w io.Writer, rep check.Report, verbose bool) {
	for _, r := range rep.Results {
		if r.Outcome == check.Fail || verbose {
			fmt.Fprintf(w, "%-8s %s (max err %.3g)", r.Outcome, r.Name, r.MaxErr)
			if r.Detail != "" {
				fmt.Fprintf(w, ": %s", r.Detail)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "%s: %d passed, %d expected, %d failed in %s\n",
		rep.Suite, rep.Passed, rep.Expected, rep.Failed, rep.Duration.Round(time.Microsecond))
}
