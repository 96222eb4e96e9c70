package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/selection"
)

// ResourcesResult is the output of set and unset.
type ResourcesResult struct {
	Action    string `json:"action"` // "set" or "unset"
	Resources string `json:"resources"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <instructions>",
		Short: "Register what to sync",
		Long: `Register resources to sync.

Instructions are either "everything" or schools separated by semicolons,
each optionally followed by comma separated terms. Syncing everything and
syncing selected schools are mutually exclusive.

Exit codes:
  0 - Resources registered
  1 - State conflict (e.g. selecting schools while syncing everything)
  2 - Command error (malformed instructions, invalid configuration, etc.)
  3 - Dirty store

Examples:
  classy-sync set everything
  classy-sync set "marist;temple,202420,202430"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResources(rootOpts, cmd, "set", args[0])
		},
	}
}

// NewUnsetCommand creates the unset command.
func NewUnsetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <instructions>",
		Short: "Stop syncing resources and forget their watermarks",
		Long: `Remove registered resources and their watermark history.

Unsetting a whole school also removes every term registered for it.
Resources that were never registered are ignored. Removing the last
selected school returns the store to the unset state.

Examples:
  classy-sync unset everything
  classy-sync unset "temple,202420"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResources(rootOpts, cmd, "unset", args[0])
		},
	}
}

func runResources(opts *RootOptions, cmd *cobra.Command, action, instructions string) error {
	resources, err := selection.Parse(instructions)
	if err != nil {
		return syncFailure("invalid instructions", err)
	}

	repl, logger, err := opts.openReplicator(cmd)
	if err != nil {
		return err
	}
	defer closeReplicator(repl, logger)

	ctx := cmd.Context()
	if action == "set" {
		err = repl.SetResources(ctx, resources)
	} else {
		err = repl.UnsetResources(ctx, resources)
	}
	if err != nil {
		return syncFailure(fmt.Sprintf("failed to %s resources", action), err)
	}

	result := ResourcesResult{Action: action, Resources: selection.Format(resources)}
	f := formatterFor(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return f.Success(result)
	}
	verb := "registered"
	if action == "unset" {
		verb = "removed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, result.Resources)
	return nil
}
