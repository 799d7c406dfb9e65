package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
)

// exportFlags holds files-export flag values. Only flags the user set
// override the loaded configuration.
var exportFlags struct {
	out             string
	noLegacy        bool
	noModern        bool
	indexBy         []string
	indexOnly       bool
	maxWorkers      int
	chunkTotal      int
	chunkIndex      int
	order           string
	legacyWhere     string
	modernWhere     string
	estimateOnly    bool
	verifyChecksums bool
}

var filesExportCmd = &cobra.Command{
	Use:   "files-export",
	Short: "Download Attachments and Files into an export directory",
	Long: `Lists every Attachment and latest ContentVersion, downloads the ones
missing from disk and builds per-object indexes.

Files already present are skipped, so an interrupted export resumes
where it stopped. With --chunk-total N each of N processes handles one
contiguous slice (--chunk-index 0..N-1) of the sorted record set; run
"sfdump consolidate" after all chunks finish.

Exits 3 when any record failed to download.`,
	Args: cobra.NoArgs,
	RunE: runFilesExport,
}

func init() {
	f := filesExportCmd.Flags()
	f.StringVarP(&exportFlags.out, "out", "o", "", "Export directory (required)")
	f.BoolVar(&exportFlags.noLegacy, "no-legacy", false, "Skip legacy Attachments")
	f.BoolVar(&exportFlags.noModern, "no-modern", false, "Skip Files (ContentVersion)")
	f.StringSliceVar(&exportFlags.indexBy, "index-by", nil, "Build indexes only for these parent object types")
	f.BoolVar(&exportFlags.indexOnly, "index-only", false, "Rebuild indexes from files on disk without downloading")
	f.IntVar(&exportFlags.maxWorkers, "max-workers", 0, "Concurrent downloads")
	f.IntVar(&exportFlags.chunkTotal, "chunk-total", 0, "Number of chunks the records are split into")
	f.IntVar(&exportFlags.chunkIndex, "chunk-index", 0, "Chunk handled by this process, 0-based")
	f.StringVar(&exportFlags.order, "order", "", "Record order: asc or desc")
	f.StringVar(&exportFlags.legacyWhere, "legacy-where", "", "Extra SOQL predicate for Attachments")
	f.StringVar(&exportFlags.modernWhere, "modern-where", "", "Extra SOQL predicate for ContentVersions")
	f.BoolVar(&exportFlags.estimateOnly, "estimate-only", false, "List and size records without downloading")
	f.BoolVar(&exportFlags.verifyChecksums, "verify-checksums", false, "Re-download files whose checksum differs from the ledger")
	_ = filesExportCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(filesExportCmd)
}

func applyExportFlags(cmd *cobra.Command, cfg *config.Config) {
	e := &cfg.Export
	f := cmd.Flags()

	if exportFlags.noLegacy {
		e.IncludeLegacy = false
	}
	if exportFlags.noModern {
		e.IncludeModern = false
	}
	if f.Changed("index-by") {
		e.IndexBy = exportFlags.indexBy
	}
	if exportFlags.indexOnly {
		e.IndexOnly = true
	}
	if f.Changed("max-workers") {
		e.MaxWorkers = exportFlags.maxWorkers
	}
	if f.Changed("chunk-total") {
		e.ChunkTotal = exportFlags.chunkTotal
	}
	if f.Changed("chunk-index") {
		e.ChunkIndex = exportFlags.chunkIndex
	}
	if f.Changed("order") {
		e.Order = domain.Order(exportFlags.order)
	}
	if f.Changed("legacy-where") {
		e.LegacyWhere = exportFlags.legacyWhere
	}
	if f.Changed("modern-where") {
		e.ModernWhere = exportFlags.modernWhere
	}
	if exportFlags.estimateOnly {
		e.EstimateOnly = true
	}
	if exportFlags.verifyChecksums {
		e.VerifyChecksums = true
	}
}

func runFilesExport(cmd *cobra.Command, _ []string) error {
	apply := func(cfg *config.Config) { applyExportFlags(cmd, cfg) }

	return withServices(cmd, exportFlags.out, apply, func(svc *Services, cfg *config.Config) error {
		if err := cfg.Salesforce.Connectable(); err != nil {
			return err
		}
		if svc.Exporter == nil {
			return fmt.Errorf("export service not configured")
		}

		summary, err := svc.Exporter.Export(cmd.Context(), cfg.Export)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		printExportSummary(cmd, summary)
		if svc.APIUsage != nil {
			if used, limit := svc.APIUsage(); limit > 0 {
				cmd.Printf("Org API usage: %d of %d requests\n", used, limit)
			}
		}

		if failed := summary.TotalFailed(); failed > 0 {
			return &exitError{
				code: ExitFailures,
				msg:  fmt.Sprintf("%d file(s) failed; run \"sfdump verify --dir %s\" then \"sfdump retry-missing\".", failed, cfg.Export.OutDir),
			}
		}
		return nil
	})
}

func printExportSummary(cmd *cobra.Command, s *driving.ExportSummary) {
	p := palette{plain: !stdoutIsTerminal(cmd.OutOrStdout())}

	cmd.Printf("Chunk %s %s\n", s.Chunk, p.dim("(run "+s.RunID+")"))
	for _, k := range s.Kinds {
		if s.EstimateOnly {
			cmd.Printf("  %-17s %d of %d records, about %s\n",
				k.Kind.Plural()+":", k.Assigned, k.Listed, humanize.Bytes(uint64(max(k.EstimatedBytes, 0))))
			continue
		}

		failed := fmt.Sprintf("%d failed", k.Failed)
		if k.Failed > 0 {
			failed = p.bad(failed)
		}
		cmd.Printf("  %-17s %d assigned, %d downloaded (%s), %d skipped, %s\n",
			k.Kind.Plural()+":", k.Assigned, k.Downloaded, humanize.Bytes(uint64(max(k.Bytes, 0))), k.Skipped, failed)

		for _, r := range k.Failures {
			cmd.Printf("    %s %s: %s\n", p.bad("x"), r.RecordID, failureText(r))
		}
	}

	if s.EstimateOnly {
		cmd.Println("Estimate only; nothing was downloaded.")
		return
	}

	cmd.Printf("Index rows: %d\n", s.IndexRows)
	for _, w := range s.IndexWarnings {
		cmd.Printf("  %s %s\n", p.warn("!"), w)
	}
	if s.Consolidated {
		cmd.Println("Indexes consolidated.")
	} else {
		cmd.Println("Chunk shards written; run \"sfdump consolidate\" once every chunk has finished.")
	}
}

func failureText(r domain.DownloadResult) string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s (%s)", r.Reason, r.Detail)
}
