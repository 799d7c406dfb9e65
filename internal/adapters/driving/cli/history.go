package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/core/domain"
)

var historyFlags struct {
	dir string
}

var historyCmd = &cobra.Command{
	Use:   "history RECORD_ID",
	Short: "Show every download attempt recorded for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyFlags.dir, "dir", "d", "", "Export directory (required)")
	_ = historyCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	recordID := args[0]

	return withServices(cmd, historyFlags.dir, readOnly, func(svc *Services, _ *config.Config) error {
		if svc.History == nil {
			return fmt.Errorf("history service not configured")
		}

		results, err := svc.History.History(cmd.Context(), recordID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("history failed: %w", err)
		}
		if len(results) == 0 {
			cmd.Printf("No attempts recorded for %s.\n", recordID)
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"When", "Phase", "Status", "Reason", "Attempts", "Bytes", "Path"})
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		for _, r := range results {
			table.Append([]string{
				r.AttemptedAt.UTC().Format(time.RFC3339),
				string(r.Phase),
				string(r.Status),
				failureText(r),
				strconv.Itoa(r.Attempts),
				strconv.FormatInt(r.Bytes, 10),
				r.LocalPath,
			})
		}
		table.Render()
		return nil
	})
}
