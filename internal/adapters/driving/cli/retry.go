package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
)

var retryFlags struct {
	dir        string
	maxWorkers int
}

var retryMissingCmd = &cobra.Command{
	Use:   "retry-missing",
	Short: "Retry the files listed in the missing reports",
	Long: `Re-attempts every record in links/<kind>_missing.csv and appends one
outcome per record to links/<kind>_missing_retry.csv.

Run "sfdump verify" first to refresh the missing reports.
Exits 3 when anything could not be recovered.`,
	Args: cobra.NoArgs,
	RunE: runRetryMissing,
}

func init() {
	f := retryMissingCmd.Flags()
	f.StringVarP(&retryFlags.dir, "dir", "d", "", "Export directory (required)")
	f.IntVar(&retryFlags.maxWorkers, "max-workers", 0, "Concurrent downloads")
	_ = retryMissingCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(retryMissingCmd)
}

func runRetryMissing(cmd *cobra.Command, _ []string) error {
	apply := func(cfg *config.Config) {
		if cmd.Flags().Changed("max-workers") {
			cfg.Export.MaxWorkers = retryFlags.maxWorkers
		}
	}

	return withServices(cmd, retryFlags.dir, apply, func(svc *Services, cfg *config.Config) error {
		if err := cfg.Salesforce.Connectable(); err != nil {
			return err
		}
		if svc.Retrier == nil {
			return fmt.Errorf("retry service not configured")
		}

		summary, err := svc.Retrier.Retry(cmd.Context(), driving.RetryOptions{MaxWorkers: cfg.Export.MaxWorkers})
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}

		if len(summary.Outcomes) == 0 {
			cmd.Println("Nothing to retry.")
			return nil
		}

		p := palette{plain: !stdoutIsTerminal(cmd.OutOrStdout())}
		counts := summary.Counts()
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)

		cmd.Printf("Retried %d file(s) %s\n", len(summary.Outcomes), p.dim("(run "+summary.RunID+")"))
		for _, s := range statuses {
			var label string
			if domain.RetryStatus(s) == domain.RetryRecovered {
				label = p.ok(s)
			} else {
				label = p.bad(s)
			}
			cmd.Printf("  %-16s %d\n", label+":", counts[domain.RetryStatus(s)])
		}

		if n := summary.StillFailed(); n > 0 {
			return &exitError{
				code: ExitFailures,
				msg:  fmt.Sprintf("%d file(s) still missing; see links/*_missing_retry.csv.", n),
			}
		}
		return nil
	})
}
