package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/cycle"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	MaxRounds int
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <payload-dir>",
		Short: "Run sync cycles against recorded payloads",
		Long: `Run sync cycles, answering each request with the next recorded payload.

Payloads are the .json files of the directory, served in file name order.
Cycles continue while the payloads report more data, up to --max-rounds.
Each round is applied atomically; a failed round leaves earlier rounds in
place and its own watermarks untouched.

Exit codes:
  0 - All rounds applied
  1 - Sync failure (payloads exhausted, row count mismatch, etc.)
  2 - Command error (missing directory, invalid configuration)
  3 - Dirty store

Examples:
  classy-sync replay ./payloads
  classy-sync replay ./payloads --max-rounds 5 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.MaxRounds, "max-rounds", cycle.DefaultMaxRounds, "maximum request/apply rounds")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, dir string) error {
	transport, err := cycle.NewReplayTransport(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open payload directory", err)
	}

	repl, logger, err := opts.openReplicator(cmd)
	if err != nil {
		return err
	}
	defer closeReplicator(repl, logger)

	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runner := cycle.NewRunner(repl, transport,
		cycle.WithMaxRounds(opts.MaxRounds),
		cycle.WithLogger(logger),
	)
	result, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "replay interrupted", err)
		}
		return syncFailure(fmt.Sprintf("replay failed after %d rounds", result.Rounds), err)
	}

	if opts.Format == "json" {
		return formatterFor(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Replayed %d rounds, %d changes\n", result.Rounds, result.Changes)
	if result.HasMore {
		fmt.Fprintf(w, "More data available: round limit %d reached\n", opts.MaxRounds)
	}
	if remaining := transport.Remaining(); remaining > 0 {
		fmt.Fprintf(w, "%d payloads not used\n", remaining)
	}
	return nil
}
