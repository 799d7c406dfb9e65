package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/logger"
)

var consolidateFlags struct {
	dir string
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge chunk shards into the final CSVs",
	Long: `Merges every links/shards/*.csv written by chunked exports into the
consolidated metadata, link and index CSVs, rebuilds the master index
and refreshes meta/inventory.json.`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVarP(&consolidateFlags.dir, "dir", "d", "", "Export directory (required)")
	_ = consolidateCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, consolidateFlags.dir, nil, func(svc *Services, _ *config.Config) error {
		if svc.Consolidator == nil {
			return fmt.Errorf("consolidate service not configured")
		}

		summary, err := svc.Consolidator.Consolidate(cmd.Context())
		if err != nil {
			return fmt.Errorf("consolidate failed: %w", err)
		}

		for _, name := range sortedKeys(summary.Files) {
			cmd.Printf("%-25s %d rows\n", name+".csv:", summary.Files[name])
		}
		cmd.Printf("%-25s %d rows\n", "content_document_links:", summary.Links)
		for _, t := range sortedKeys(summary.Indexes) {
			cmd.Printf("%-25s %d rows\n", t+" index:", summary.Indexes[t])
		}
		cmd.Printf("%-25s %d rows\n", "master index:", summary.MasterRows)

		if svc.Inventory != nil {
			report, err := svc.Inventory.Inventory(cmd.Context())
			if err != nil {
				logger.Warn("Inventory refresh failed: %v", err)
				return nil
			}
			cmd.Printf("Inventory: %s\n", report.Overall)
		}
		return nil
	})
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
