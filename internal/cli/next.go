package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/model"
)

// NewNextCommand creates the next command.
func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Print the next request to send to the remote service",
		Long: `Print the next request as JSON.

The request is derived from the stored watermarks: an all request when
everything is synced, a select request when schools are selected.

Examples:
  classy-sync next
  classy-sync next --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNext(rootOpts, cmd)
		},
	}
}

// NextResult wraps the request with its kind for JSON output.
type NextResult struct {
	Kind    string        `json:"kind"` // "all" or "select"
	Request model.Request `json:"request"`
}

func runNext(opts *RootOptions, cmd *cobra.Command) error {
	repl, logger, err := opts.openReplicator(cmd)
	if err != nil {
		return err
	}
	defer closeReplicator(repl, logger)

	req, err := repl.GenerateNextRequest(cmd.Context())
	if err != nil {
		return syncFailure("failed to generate request", err)
	}

	if opts.Format == "json" {
		return formatterFor(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(NextResult{
			Kind:    requestKind(req),
			Request: req,
		})
	}

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func requestKind(req model.Request) string {
	if _, ok := req.(model.AllRequest); ok {
		return "all"
	}
	return "select"
}
