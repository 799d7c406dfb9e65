// Package cli implements the sfdump command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/logger"
)

// Process exit codes. Cobra usage errors and fatal errors exit 1.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitFailures = 3
	ExitMissing  = 4
)

// version is set at build time through SetVersion.
var version = "dev"

var (
	verbose    bool
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "sfdump",
	Short: "Export Salesforce files to a verifiable local archive",
	Long: `sfdump downloads Salesforce Attachments and Files into a local export
directory, builds per-object indexes, verifies completeness offline and
retries anything that went missing.

Exports are resumable: files already on disk are never fetched again,
and large orgs can be split into chunks run by separate processes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show progress and debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.sfdump/config.toml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default .env)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// exitError carries a non-zero exit code for outcomes that are reported
// rather than failed, such as records still missing after a run.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	return execute(ctx, rootCmd.ErrOrStderr())
}

func execute(ctx context.Context, stderr io.Writer) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.msg)
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Interrupted; rerun the same command to resume.")
	}
	return ExitError
}

// stdoutIsTerminal reports whether w is an interactive terminal.
func stdoutIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
