// Package cli implements the classy-sync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Pjt727/classy-sync/internal/config"
	"github.com/Pjt727/classy-sync/internal/replicate"
	"github.com/Pjt727/classy-sync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile string
	EnvFile    string

	// Overrides applied on top of the loaded configuration.
	Database   string
	Backend    string
	Strict     bool
	MaxRecords uint16

	// LookupEnv overrides os.LookupEnv (for testing).
	LookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the classy-sync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classy-sync",
		Short: "Replicate a class catalog into SQLite",
		Long: `classy-sync keeps a local SQLite copy of a remote class catalog.

Choose what to sync with "set", then apply the remote answers to the
requests printed by "next", or replay a directory of recorded answers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "configuration file (.yaml, .yml or .cue)")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file, ignored when missing")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database")
	flags.StringVar(&opts.Backend, "backend", "", "SQLite driver (sqlite3|sqlite)")
	flags.BoolVar(&opts.Strict, "strict", false, "fail batches on unexpected affected row counts")
	flags.Uint16Var(&opts.MaxRecords, "max-records", 0, "records requested per round trip")

	// Add subcommands
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewUnsetCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stderr, or as a JSON response on stdout when the
// format is json.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if alreadyReported(err) {
		return GetExitCode(err)
	}

	f := &OutputFormatter{Format: "text", Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Format = "json"
		f.Writer = stdout
	}
	_ = f.Error(errorCode(err), err.Error(), errorDetails(err))
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig loads the layered configuration and applies flag overrides.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.Source{
		File:      o.ConfigFile,
		EnvFile:   o.EnvFile,
		LookupEnv: o.LookupEnv,
	})
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if cmd.Flags().Changed("strict") {
		strict := o.Strict
		cfg.Strict = &strict
	}
	if cmd.Flags().Changed("max-records") {
		cfg.MaxRecords = o.MaxRecords
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the text logger on the command's stderr.
func (o *RootOptions) newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openReplicator loads the configuration and opens the replicator it describes.
func (o *RootOptions) openReplicator(cmd *cobra.Command) (*replicate.Replicator, *slog.Logger, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := o.newLogger(cmd)
	logger.Debug("opening database", "path", cfg.DBPath, "backend", cfg.Backend)

	repl, err := replicate.Open(replicate.Options{
		Backend:    store.Backend(cfg.Backend),
		Path:       cfg.DBPath,
		Strictness: replicate.StrictnessOf(cfg.IsStrict()),
		MaxRecords: cfg.MaxRecords,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return repl, logger, nil
}

// closeReplicator closes repl, logging failures.
func closeReplicator(repl *replicate.Replicator, logger *slog.Logger) {
	if err := repl.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}
