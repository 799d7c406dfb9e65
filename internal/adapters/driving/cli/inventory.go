package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/core/domain"
)

var inventoryFlags struct {
	dir      string
	jsonOnly bool
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Report how complete an export is, without contacting Salesforce",
	Long: `Inspects the export directory and the download ledger and writes
meta/inventory.json. Nothing is fetched from Salesforce.

Exits 4 when the export is incomplete.`,
	Args: cobra.NoArgs,
	RunE: runInventory,
}

func init() {
	f := inventoryCmd.Flags()
	f.StringVarP(&inventoryFlags.dir, "dir", "d", "", "Export directory (required)")
	f.BoolVar(&inventoryFlags.jsonOnly, "json-only", false, "Print the report as JSON")
	_ = inventoryCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(inventoryCmd)
}

func runInventory(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, inventoryFlags.dir, readOnly, func(svc *Services, _ *config.Config) error {
		if svc.Inventory == nil {
			return fmt.Errorf("inventory service not configured")
		}

		report, err := svc.Inventory.Inventory(cmd.Context())
		if err != nil {
			return fmt.Errorf("inventory failed: %w", err)
		}

		if inventoryFlags.jsonOnly {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			p := palette{plain: !stdoutIsTerminal(cmd.OutOrStdout())}
			renderInventory(cmd.OutOrStdout(), p, report)
		}

		if report.Overall == domain.StatusIncomplete {
			return &exitError{code: ExitMissing, msg: "Export is incomplete."}
		}
		return nil
	})
}

func renderInventory(w io.Writer, p palette, r *domain.CompletenessReport) {
	fmt.Fprintf(w, "Export root: %s\n\n", r.ExportRoot)

	files := tablewriter.NewWriter(w)
	files.SetHeader([]string{"Category", "Status", "Expected", "Present", "Missing", "Corrupt", "Recovered", "On disk", "Size"})
	files.SetAutoFormatHeaders(false)
	files.SetAlignment(tablewriter.ALIGN_LEFT)
	files.SetBorder(false)
	for _, k := range domain.AllKinds() {
		c := r.Files(k)
		files.Append([]string{
			k.Plural(),
			statusText(p, c.Status),
			strconv.Itoa(c.Expected),
			strconv.Itoa(c.Present),
			strconv.Itoa(c.Missing),
			strconv.Itoa(c.Corrupt),
			strconv.Itoa(c.Recovered),
			strconv.Itoa(c.OnDisk),
			humanize.Bytes(uint64(max(c.DiskBytes, 0))),
		})
	}
	files.Render()
	fmt.Fprintln(w)

	other := tablewriter.NewWriter(w)
	other.SetHeader([]string{"Category", "Status", "Detail"})
	other.SetAutoFormatHeaders(false)
	other.SetAlignment(tablewriter.ALIGN_LEFT)
	other.SetBorder(false)
	other.Append([]string{
		"indexes",
		statusText(p, r.Indexes.Status),
		fmt.Sprintf("%d object indexes, %d master rows (%d without path), %d pending shards",
			r.Indexes.FilesIndexCount, r.Indexes.MasterIndexRows, r.Indexes.MasterRowsMissingPath, r.Indexes.PendingShards),
	})
	other.Append([]string{
		"ledger",
		statusText(p, r.Ledger.Status),
		fmt.Sprintf("%d results: %d downloaded, %d skipped, %d failed",
			r.Ledger.Results, r.Ledger.Downloaded, r.Ledger.Skipped, r.Ledger.Failed),
	})
	other.Render()

	fmt.Fprintf(w, "\nOverall: %s\n", statusText(p, r.Overall))
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", p.warn("!"), warning)
	}
}

func statusText(p palette, s domain.CategoryStatus) string {
	switch s {
	case domain.StatusComplete:
		return p.ok(string(s))
	case domain.StatusIncomplete:
		return p.bad(string(s))
	case domain.StatusWarning, domain.StatusNotChecked:
		return p.warn(string(s))
	default:
		return p.dim(string(s))
	}
}
