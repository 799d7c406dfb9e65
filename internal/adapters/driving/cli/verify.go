package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
)

var verifyFlags struct {
	dir             string
	requery         bool
	verifyChecksums bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every expected file is present on disk",
	Long: `Compares the expected record manifests written by files-export with the
files on disk and rewrites links/<kind>_missing.csv.

With --requery the expected records are listed from Salesforce instead.
Exits 4 when anything is missing.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVarP(&verifyFlags.dir, "dir", "d", "", "Export directory (required)")
	f.BoolVar(&verifyFlags.requery, "requery", false, "List expected records from Salesforce")
	f.BoolVar(&verifyFlags.verifyChecksums, "verify-checksums", false, "Compare files against ledger checksums")
	_ = verifyCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	apply := func(cfg *config.Config) {
		if verifyFlags.verifyChecksums {
			cfg.Export.VerifyChecksums = true
		}
	}

	return withServices(cmd, verifyFlags.dir, apply, func(svc *Services, cfg *config.Config) error {
		if verifyFlags.requery {
			if err := cfg.Salesforce.Connectable(); err != nil {
				return err
			}
		}
		if svc.Verifier == nil {
			return fmt.Errorf("verify service not configured")
		}

		opts := driving.VerifyOptions{
			Requery:         verifyFlags.requery,
			VerifyChecksums: cfg.Export.VerifyChecksums,
		}
		if verifyFlags.requery {
			opts.Filters = make(map[domain.SourceKind]domain.ListFilter)
			for _, k := range cfg.Export.Kinds() {
				opts.Filters[k] = domain.ListFilter{Where: cfg.Export.Where(k)}
			}
		}

		summary, err := svc.Verifier.Verify(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}

		p := palette{plain: !stdoutIsTerminal(cmd.OutOrStdout())}
		for _, k := range summary.Kinds {
			missing := fmt.Sprintf("%d missing", len(k.Missing))
			if len(k.Missing) > 0 {
				missing = p.bad(missing)
			} else {
				missing = p.ok(missing)
			}
			cmd.Printf("%-17s %d expected, %d present, %s\n", k.Kind.Plural()+":", k.Expected, k.Present, missing)
		}

		if n := summary.TotalMissing(); n > 0 {
			return &exitError{
				code: ExitMissing,
				msg:  fmt.Sprintf("%d file(s) missing; run \"sfdump retry-missing --dir %s\".", n, cfg.Export.OutDir),
			}
		}
		cmd.Println("All expected files are present.")
		return nil
	})
}
