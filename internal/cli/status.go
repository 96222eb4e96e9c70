package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/replicate"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync mode and watermarks",
		Long: `Show the stored sync state: the mode, the global watermark, and every
selected scope with its watermark. Terms superseded by a whole-school scope
are marked as exclusions. Works on a dirty store.

Examples:
  classy-sync status
  classy-sync status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	repl, logger, err := opts.openReplicator(cmd)
	if err != nil {
		return err
	}
	defer closeReplicator(repl, logger)

	status, err := repl.Status(cmd.Context())
	if err != nil {
		return syncFailure("failed to read status", err)
	}

	if opts.Format == "json" {
		return formatterFor(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(status)
	}
	return outputStatusText(cmd, status)
}

func outputStatusText(cmd *cobra.Command, status replicate.Status) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Mode:          %s\n", status.Mode)
	fmt.Fprintf(w, "All watermark: %d\n", status.AllWatermark)
	fmt.Fprintf(w, "Database:      %s (%s)\n", status.Backend, status.Strictness)

	if len(status.Scopes) == 0 {
		fmt.Fprintln(w, "Scopes:        none")
		return nil
	}

	fmt.Fprintln(w, "Scopes:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range status.Scopes {
		scope := s.School
		if s.Term != "" {
			scope = s.School + "/" + s.Term
		}
		note := ""
		if s.Exclusion {
			note = "exclusion"
		}
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", scope, s.Watermark, note)
	}
	return tw.Flush()
}
