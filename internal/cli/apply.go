package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Kind    string `json:"kind"` // "all" or "select"
	Changes int    `json:"changes"`
	HasMore bool   `json:"has_more"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <payload.json>",
		Short: "Apply a result payload from the remote service",
		Long: `Apply a result payload atomically.

The payload kind is detected from its fields: "new_watermark" for an all
result, "updated_watermarks" for a select result. A select result is
checked against the request "next" prints for the current state.

Exit codes:
  0 - Payload applied
  1 - Sync failure (row count mismatch, state conflict, etc.); nothing was written
  2 - Command error (unreadable or malformed payload, invalid configuration)
  3 - Dirty store

Examples:
  classy-sync apply ./result.json
  classy-sync apply ./result.json --strict=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, cmd, args[0])
		},
	}
}

func runApply(opts *RootOptions, cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}
	kind, err := payloadKind(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to detect payload kind", err)
	}

	repl, logger, err := opts.openReplicator(cmd)
	if err != nil {
		return err
	}
	defer closeReplicator(repl, logger)

	ctx := cmd.Context()
	result := ApplyResult{Kind: kind}

	switch kind {
	case "all":
		var payload model.AllResultPayload
		if err := decodeStrict(data, &payload); err != nil {
			return WrapExitError(ExitCommandError, "failed to decode payload", err)
		}
		if err := repl.ApplyAllResult(ctx, payload); err != nil {
			return syncFailure("failed to apply all result", err)
		}
		result.Changes, result.HasMore = len(payload.Changes), payload.HasMore

	case "select":
		var payload model.SelectResultPayload
		if err := decodeStrict(data, &payload); err != nil {
			return WrapExitError(ExitCommandError, "failed to decode payload", err)
		}
		req, err := repl.GenerateNextRequest(ctx)
		if err != nil {
			return syncFailure("failed to generate echo request", err)
		}
		echo, ok := req.(model.SelectRequest)
		if !ok {
			return syncFailure("failed to apply select result", syncerr.StateConflict("store is not syncing selected schools"))
		}
		if err := repl.ApplySelectResult(ctx, echo, payload); err != nil {
			return syncFailure("failed to apply select result", err)
		}
		result.Changes, result.HasMore = len(payload.Changes), payload.AnyHasMore
	}

	if opts.Format == "json" {
		return formatterFor(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %s result: %d changes", result.Kind, result.Changes)
	if result.HasMore {
		fmt.Fprint(cmd.OutOrStdout(), " (more available)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// payloadKind tells all results from select results by their watermark field.
func payloadKind(data []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}
	_, all := fields["new_watermark"]
	_, sel := fields["updated_watermarks"]
	switch {
	case all && sel:
		return "", fmt.Errorf("payload has both new_watermark and updated_watermarks")
	case all:
		return "all", nil
	case sel:
		return "select", nil
	default:
		return "", fmt.Errorf("payload has neither new_watermark nor updated_watermarks")
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
