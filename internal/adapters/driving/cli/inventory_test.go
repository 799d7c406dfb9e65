package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

func sampleReport(overall domain.CategoryStatus) *domain.CompletenessReport {
	return &domain.CompletenessReport{
		ExportRoot:      "/exports/acme",
		Attachments:     domain.FileCategory{Status: domain.StatusComplete, Expected: 3, Present: 3, OnDisk: 3, DiskBytes: 3000},
		ContentVersions: domain.FileCategory{Status: overall, Expected: 5, Present: 4, Missing: 1, OnDisk: 4, DiskBytes: 4096},
		Indexes:         domain.IndexCategory{Status: domain.StatusComplete, FilesIndexCount: 2, MasterIndexRows: 7, MasterRowsWithPath: 7},
		Ledger:          domain.LedgerCategory{Status: domain.StatusComplete, Results: 8, Downloaded: 7, Failed: 1},
		Overall:         overall,
		Warnings:        []string{"1 content_versions missing"},
	}
}

func TestInventoryCmd_Table(t *testing.T) {
	env := setupCLITest(t)
	env.svc.Inventory = &mockInventory{report: sampleReport(domain.StatusComplete)}

	out, code := env.run(t, "inventory", "--dir", env.dir)

	require.Equal(t, ExitOK, code, out)
	assert.True(t, env.cfg.ReadOnly)
	assert.Contains(t, out, "Export root: /exports/acme")
	assert.Contains(t, out, "Expected")
	assert.Contains(t, out, "content_versions")
	assert.Contains(t, out, "4.1 kB")
	assert.Contains(t, out, "2 object indexes, 7 master rows (0 without path), 0 pending shards")
	assert.Contains(t, out, "8 results: 7 downloaded, 0 skipped, 1 failed")
	assert.Contains(t, out, "Overall: COMPLETE")
	assert.Contains(t, out, "1 content_versions missing")
	assert.NotContains(t, out, "\x1b[", "no styling when not a terminal")
}

func TestInventoryCmd_IncompleteExitsFour(t *testing.T) {
	env := setupCLITest(t)
	env.svc.Inventory = &mockInventory{report: sampleReport(domain.StatusIncomplete)}

	out, code := env.run(t, "inventory", "--dir", env.dir)

	assert.Equal(t, ExitMissing, code)
	assert.Contains(t, out, "Overall: INCOMPLETE")
	assert.Contains(t, out, "Export is incomplete.")
}

func TestInventoryCmd_JSONOnly(t *testing.T) {
	env := setupCLITest(t)
	env.svc.Inventory = &mockInventory{report: sampleReport(domain.StatusComplete)}
	env.svc.Inventory.(*mockInventory).report.Overall = domain.StatusWarning

	resetFlags(rootCmd)
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"--config", env.dir + "/config.toml", "--env-file", env.dir + "/none.env",
		"inventory", "--dir", env.dir, "--json-only"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "WARNING", got["overall_status"])
	assert.Equal(t, "/exports/acme", got["export_root"])
	assert.Contains(t, got, "content_versions")
}

func TestStatusText_Plain(t *testing.T) {
	p := palette{plain: true}
	assert.Equal(t, "COMPLETE", statusText(p, domain.StatusComplete))
	assert.Equal(t, "N/A", statusText(p, domain.StatusNotApplicable))
}
