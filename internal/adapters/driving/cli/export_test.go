package cli

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
)

func TestFilesExportCmd_Use(t *testing.T) {
	assert.Equal(t, "files-export", filesExportCmd.Use)
	assert.Contains(t, filesExportCmd.Long, "Exits 3")
}

func TestFilesExportCmd_RequiresOut(t *testing.T) {
	env := setupCLITest(t)

	out, code := env.run(t, "files-export")

	assert.Equal(t, ExitError, code)
	assert.Contains(t, out, `required flag(s) "out" not set`)
}

func TestFilesExportCmd_Defaults(t *testing.T) {
	env := setupCLITest(t)
	exp := &mockExporter{}
	env.svc.Exporter = exp

	out, code := env.run(t, "files-export", "--out", env.dir)

	require.Equal(t, ExitOK, code, out)
	assert.Equal(t, env.dir, exp.got.OutDir)
	assert.True(t, exp.got.IncludeLegacy)
	assert.True(t, exp.got.IncludeModern)
	assert.Equal(t, 1, exp.got.ChunkTotal)
	assert.Equal(t, 0, exp.got.ChunkIndex)
	assert.Equal(t, domain.OrderAsc, exp.got.Order)
	assert.Equal(t, domain.DefaultMaxWorkers, exp.got.MaxWorkers)
	assert.Contains(t, out, "Chunk 1of1")
	assert.Equal(t, 1, env.closed)
}

func TestFilesExportCmd_FlagsOverrideEnvironment(t *testing.T) {
	env := setupCLITest(t)
	exp := &mockExporter{}
	env.svc.Exporter = exp
	t.Setenv("SFDUMP_MAX_WORKERS", "2")
	t.Setenv("SFDUMP_FILES_CHUNK_TOTAL", "4")
	t.Setenv("SFDUMP_FILES_CHUNK_INDEX", "1")

	out, code := env.run(t, "files-export", "--out", env.dir,
		"--no-legacy",
		"--index-by", "Opportunity", "--index-by", "Account",
		"--max-workers", "16",
		"--chunk-index", "3",
		"--order", "desc",
		"--modern-where", "CreatedDate = LAST_YEAR",
		"--verify-checksums",
	)

	require.Equal(t, ExitOK, code, out)
	g := exp.got
	assert.False(t, g.IncludeLegacy)
	assert.True(t, g.IncludeModern)
	assert.Equal(t, []string{"Opportunity", "Account"}, g.IndexBy)
	assert.Equal(t, 16, g.MaxWorkers)
	assert.Equal(t, 4, g.ChunkTotal, "unset flag keeps the environment value")
	assert.Equal(t, 3, g.ChunkIndex)
	assert.Equal(t, domain.OrderDesc, g.Order)
	assert.Equal(t, "CreatedDate = LAST_YEAR", g.ModernWhere)
	assert.True(t, g.VerifyChecksums)
	assert.Contains(t, out, "Chunk 4of4")
	assert.Contains(t, out, "run \"sfdump consolidate\"")
}

func TestFilesExportCmd_InvalidChunkIsRejected(t *testing.T) {
	env := setupCLITest(t)
	exp := &mockExporter{}
	env.svc.Exporter = exp

	out, code := env.run(t, "files-export", "--out", env.dir, "--chunk-total", "2", "--chunk-index", "2")

	assert.Equal(t, ExitError, code)
	assert.Contains(t, out, "ChunkIndex")
	assert.Empty(t, exp.got.OutDir, "export must not run")
}

func TestFilesExportCmd_RequiresCredentials(t *testing.T) {
	env := setupCLITest(t)
	os.Unsetenv("SF_ACCESS_TOKEN")

	out, code := env.run(t, "files-export", "--out", env.dir)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, out, "SF_ACCESS_TOKEN")
}

func TestFilesExportCmd_FailuresExitThree(t *testing.T) {
	env := setupCLITest(t)
	env.svc.Exporter = &mockExporter{summary: &driving.ExportSummary{
		RunID: "run-9",
		Chunk: "1of1",
		Kinds: []driving.KindSummary{{
			Kind:       domain.KindLegacyAttachment,
			Listed:     3,
			Assigned:   3,
			Downloaded: 2,
			Failed:     1,
			Bytes:      2048,
			Failures: []domain.DownloadResult{{
				RecordID: "00P3",
				Status:   domain.StatusFailed,
				Reason:   domain.ReasonNotFound,
				Detail:   "deleted upstream",
			}},
		}},
		Consolidated: true,
	}}
	env.svc.APIUsage = func() (int, int) { return 125, 15000 }

	out, code := env.run(t, "files-export", "--out", env.dir)

	assert.Equal(t, ExitFailures, code)
	assert.False(t, env.cfg.ReadOnly)
	assert.Contains(t, out, "Org API usage: 125 of 15000 requests")
	assert.Contains(t, out, "attachments:")
	assert.Contains(t, out, "2 downloaded (2.0 kB)")
	assert.Contains(t, out, "00P3: NotFound (deleted upstream)")
	assert.Contains(t, out, "1 file(s) failed")
	assert.Contains(t, out, "Indexes consolidated.")
}

func TestFilesExportCmd_EstimateOnly(t *testing.T) {
	env := setupCLITest(t)
	exp := &mockExporter{summary: &driving.ExportSummary{
		Chunk:        "1of1",
		EstimateOnly: true,
		Kinds: []driving.KindSummary{{
			Kind: domain.KindModernDocument, Listed: 10, Assigned: 10, EstimatedBytes: 5_000_000,
		}},
	}}
	env.svc.Exporter = exp

	out, code := env.run(t, "files-export", "--out", env.dir, "--estimate-only")

	require.Equal(t, ExitOK, code, out)
	assert.True(t, exp.got.EstimateOnly)
	assert.Contains(t, out, "10 of 10 records, about 5.0 MB")
	assert.Contains(t, out, "nothing was downloaded")
}

func TestFilesExportCmd_ServiceError(t *testing.T) {
	env := setupCLITest(t)
	env.svc.Exporter = &mockExporter{err: errors.New("list attachments: source unavailable")}

	out, code := env.run(t, "files-export", "--out", env.dir)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, out, "export failed: list attachments: source unavailable")
}
