package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// LedgerFile is the ledger's file name inside the meta directory.
const LedgerFile = "ledger.db"

// Ensure Store implements the interface.
var _ driven.ResultStore = (*Store)(nil)

// Store is the SQLite-backed ledger of download results.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the ledger in dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, LedgerFile)

	// WAL plus a busy timeout lets chunk processes append concurrently.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// OpenExisting opens the ledger in dir only if it already exists.
// Returns domain.ErrNotFound otherwise.
func OpenExisting(dir string) (*Store, error) {
	if _, err := os.Stat(filepath.Join(dir, LedgerFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ledger in %s: %w", dir, domain.ErrNotFound)
		}
		return nil, err
	}
	return NewStore(dir)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies the embedded migrations with golang-migrate.
// The migrate instance is not closed: that would close s.db.
func (s *Store) migrate() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("initialising migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Append records results in a single transaction.
func (s *Store) Append(ctx context.Context, results ...domain.DownloadResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO download_results
			(record_id, kind, local_path, status, reason, detail, checksum,
			 bytes, mime_type, attempts, phase, run_id, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.ExecContext(ctx,
			r.RecordID, string(r.Kind), r.LocalPath, string(r.Status), string(r.Reason),
			r.Detail, r.Checksum, r.Bytes, r.MimeType, r.Attempts, string(r.Phase),
			r.RunID, r.AttemptedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("inserting result for %s: %w", r.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

// History returns every result for a record in insertion order.
func (s *Store) History(ctx context.Context, recordID string) ([]domain.DownloadResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, kind, local_path, status, reason, detail, checksum,
		       bytes, mime_type, attempts, phase, run_id, attempted_at
		FROM download_results
		WHERE record_id = ?
		ORDER BY id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var results []domain.DownloadResult
	for rows.Next() {
		var (
			r                           domain.DownloadResult
			kind, status, reason, phase string
			attemptedAt                 int64
		)
		if err := rows.Scan(
			&r.RecordID, &kind, &r.LocalPath, &status, &reason, &r.Detail, &r.Checksum,
			&r.Bytes, &r.MimeType, &r.Attempts, &phase, &r.RunID, &attemptedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Kind = domain.SourceKind(kind)
		r.Status = domain.DownloadStatus(status)
		r.Reason = domain.FailureReason(reason)
		r.Phase = domain.Phase(phase)
		r.AttemptedAt = time.Unix(0, attemptedAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestChecksums returns the newest non-empty checksum per record of a kind.
func (s *Store) LatestChecksums(ctx context.Context, kind domain.SourceKind) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, checksum
		FROM download_results
		WHERE kind = ? AND checksum != '' AND status IN (?, ?)
		ORDER BY id
	`, string(kind), string(domain.StatusDownloaded), string(domain.StatusSkipped))
	if err != nil {
		return nil, fmt.Errorf("querying checksums: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]string)
	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scanning checksum: %w", err)
		}
		sums[id] = sum
	}
	return sums, rows.Err()
}

// Stats counts results by status.
func (s *Store) Stats(ctx context.Context) (*driven.ResultStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM download_results GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	stats := &driven.ResultStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		stats.Results += n
		switch domain.DownloadStatus(status) {
		case domain.StatusDownloaded:
			stats.Downloaded = n
		case domain.StatusSkipped:
			stats.Skipped = n
		case domain.StatusFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}
