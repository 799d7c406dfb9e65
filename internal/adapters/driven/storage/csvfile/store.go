package csvfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.ExportStore = (*Store)(nil)

// Directory and file names under the export root.
const (
	MetaDir   = "meta"
	LinksDir  = "links"
	ShardsDir = "shards"

	linksName     = "content_document_links"
	indexSuffix   = "_files_index"
	masterName    = "master_documents_index.csv"
	inventoryName = "inventory.json"
)

// Store keeps the CSV and JSON artifacts of one export root.
type Store struct {
	root string

	mu sync.Mutex
	// consumed holds the shard files read since the last ClearShards.
	consumed map[string]struct{}
}

// NewStore returns a store rooted at the export directory.
// Directories are created on first write.
func NewStore(root string) *Store {
	return &Store{root: root, consumed: make(map[string]struct{})}
}

// Root returns the export root.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) metaPath(name string) string {
	return filepath.Join(s.root, MetaDir, name)
}

func (s *Store) linksPath(name string) string {
	return filepath.Join(s.root, LinksDir, name)
}

func (s *Store) shardPath(base, chunk string) string {
	return filepath.Join(s.root, LinksDir, ShardsDir, base+"."+chunk+".csv")
}

func (s *Store) shardGlob(base string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, LinksDir, ShardsDir, base+".*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// readOptional loads a table, treating an absent file as empty.
func readOptional(path string) (*table, error) {
	t, err := readTable(path)
	if errors.Is(err, domain.ErrNotFound) {
		return &table{cols: map[string]int{}}, nil
	}
	return t, err
}

// --- manifests ---

// WriteExpected writes meta/expected_<plural>.csv.
func (s *Store) WriteExpected(kind domain.SourceKind, records []domain.FileRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = encodeRecord(r)
	}
	return writeTable(s.metaPath("expected_"+kind.Plural()+".csv"), recordHeader, rows)
}

// ReadExpected reads meta/expected_<plural>.csv.
func (s *Store) ReadExpected(kind domain.SourceKind) ([]domain.FileRecord, error) {
	t, err := readTable(s.metaPath("expected_" + kind.Plural() + ".csv"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileRecord, len(t.rows))
	for i, row := range t.rows {
		out[i] = decodeRecord(t, row)
		if out[i].Kind == "" {
			out[i].Kind = kind
		}
	}
	return out, nil
}

// WriteFileShard writes links/shards/<plural>.<chunk>.csv.
func (s *Store) WriteFileShard(kind domain.SourceKind, chunk string, entries []domain.FileEntry) error {
	return writeTable(s.shardPath(kind.Plural(), chunk), fileHeader, encodeEntries(entries))
}

// ReadFileShards reads every metadata shard for a kind in chunk order.
func (s *Store) ReadFileShards(kind domain.SourceKind) ([]domain.FileEntry, error) {
	paths, err := s.shardGlob(kind.Plural())
	if err != nil {
		return nil, err
	}
	var out []domain.FileEntry
	for _, p := range paths {
		entries, err := readEntries(p, kind, false)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	s.consume(paths)
	return out, nil
}

// ReadFiles reads links/<plural>.csv.
func (s *Store) ReadFiles(kind domain.SourceKind) ([]domain.FileEntry, error) {
	return readEntries(s.linksPath(kind.Plural()+".csv"), kind, true)
}

// WriteFiles writes links/<plural>.csv.
func (s *Store) WriteFiles(kind domain.SourceKind, entries []domain.FileEntry) error {
	return writeTable(s.linksPath(kind.Plural()+".csv"), fileHeader, encodeEntries(entries))
}

func encodeEntries(entries []domain.FileEntry) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = encodeEntry(e)
	}
	return rows
}

func readEntries(path string, kind domain.SourceKind, optional bool) ([]domain.FileEntry, error) {
	read := readTable
	if optional {
		read = readOptional
	}
	t, err := read(path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileEntry, 0, len(t.rows))
	for _, row := range t.rows {
		e := decodeEntry(t, row)
		if e.Kind == "" {
			e.Kind = kind
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteLinkShard writes links/shards/content_document_links.<chunk>.csv.
func (s *Store) WriteLinkShard(chunk string, links []domain.FileLink) error {
	return writeTable(s.shardPath(linksName, chunk), linkHeader, encodeLinks(links))
}

// ReadLinkShards reads every document link shard.
func (s *Store) ReadLinkShards() ([]domain.FileLink, error) {
	paths, err := s.shardGlob(linksName)
	if err != nil {
		return nil, err
	}
	var out []domain.FileLink
	for _, p := range paths {
		links, err := readLinks(p)
		if err != nil {
			return nil, err
		}
		out = append(out, links...)
	}
	s.consume(paths)
	return out, nil
}

// ReadLinks reads links/content_document_links.csv.
func (s *Store) ReadLinks() ([]domain.FileLink, error) {
	return readLinks(s.linksPath(linksName + ".csv"))
}

// WriteLinks writes links/content_document_links.csv.
func (s *Store) WriteLinks(links []domain.FileLink) error {
	return writeTable(s.linksPath(linksName+".csv"), linkHeader, encodeLinks(links))
}

func encodeLinks(links []domain.FileLink) [][]string {
	rows := make([][]string, len(links))
	for i, l := range links {
		rows[i] = encodeLink(l)
	}
	return rows
}

func readLinks(path string) ([]domain.FileLink, error) {
	t, err := readOptional(path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileLink, len(t.rows))
	for i, row := range t.rows {
		out[i] = decodeLink(t, row)
	}
	return out, nil
}

// --- indexes ---

// WriteIndexShard writes links/shards/<Type>_files_index.<chunk>.csv.
func (s *Store) WriteIndexShard(parentType, chunk string, rows []domain.IndexRow) error {
	return writeTable(s.shardPath(parentType+indexSuffix, chunk), indexHeader, encodeIndex(rows))
}

// ReadIndexShards reads every index shard grouped by parent type.
func (s *Store) ReadIndexShards() (map[string][]domain.IndexRow, error) {
	paths, err := s.shardGlob("*" + indexSuffix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.IndexRow)
	for _, p := range paths {
		name := filepath.Base(p)
		i := strings.LastIndex(name, indexSuffix+".")
		if i <= 0 {
			continue
		}
		rows, err := readIndex(p)
		if err != nil {
			return nil, err
		}
		parentType := name[:i]
		out[parentType] = append(out[parentType], rows...)
	}
	s.consume(paths)
	return out, nil
}

// WriteIndex writes links/<Type>_files_index.csv.
func (s *Store) WriteIndex(parentType string, rows []domain.IndexRow) error {
	return writeTable(s.linksPath(parentType+indexSuffix+".csv"), indexHeader, encodeIndex(rows))
}

// ReadIndex reads links/<Type>_files_index.csv.
func (s *Store) ReadIndex(parentType string) ([]domain.IndexRow, error) {
	return readIndex(s.linksPath(parentType + indexSuffix + ".csv"))
}

// ListIndexes returns the parent types with a consolidated index, sorted.
func (s *Store) ListIndexes() ([]string, error) {
	matches, err := filepath.Glob(s.linksPath("*" + indexSuffix + ".csv"))
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), indexSuffix+".csv")
		if name != "" {
			types = append(types, name)
		}
	}
	sort.Strings(types)
	return types, nil
}

// WriteMaster writes meta/master_documents_index.csv.
func (s *Store) WriteMaster(rows []domain.IndexRow) error {
	return writeTable(s.metaPath(masterName), indexHeader, encodeIndex(rows))
}

// ReadMaster reads meta/master_documents_index.csv.
func (s *Store) ReadMaster() ([]domain.IndexRow, error) {
	t, err := readTable(s.metaPath(masterName))
	if err != nil {
		return nil, err
	}
	return decodeIndex(t), nil
}

// PendingShards counts the CSV files under links/shards.
func (s *Store) PendingShards() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, LinksDir, ShardsDir, "*.csv"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// consume records shard files as merged.
func (s *Store) consume(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.consumed[p] = struct{}{}
	}
}

// ClearShards removes the shard files read since the last call. Shards
// written after they were read stay pending. links/shards is removed once
// it is empty.
func (s *Store) ClearShards() error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.consumed))
	for p := range s.consumed {
		paths = append(paths, p)
	}
	s.consumed = make(map[string]struct{})
	s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	dir := filepath.Join(s.root, LinksDir, ShardsDir)
	if left, err := os.ReadDir(dir); err == nil && len(left) == 0 {
		if err := os.Remove(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encodeIndex(rows []domain.IndexRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = encodeIndexRow(r)
	}
	return out
}

func decodeIndex(t *table) []domain.IndexRow {
	out := make([]domain.IndexRow, len(t.rows))
	for i, row := range t.rows {
		out[i] = decodeIndexRow(t, row)
	}
	return out
}

func readIndex(path string) ([]domain.IndexRow, error) {
	t, err := readOptional(path)
	if err != nil {
		return nil, err
	}
	return decodeIndex(t), nil
}

// --- verification ---

// WriteMissing writes links/<plural>_missing.csv.
func (s *Store) WriteMissing(kind domain.SourceKind, entries []domain.MissingEntry) error {
	rows := make([][]string, len(entries))
	for i, m := range entries {
		rows[i] = encodeMissing(m)
	}
	return writeTable(s.linksPath(kind.Plural()+"_missing.csv"), missingHeader, rows)
}

// ReadMissing reads links/<plural>_missing.csv.
func (s *Store) ReadMissing(kind domain.SourceKind) ([]domain.MissingEntry, error) {
	t, err := readTable(s.linksPath(kind.Plural() + "_missing.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.MissingEntry, len(t.rows))
	for i, row := range t.rows {
		out[i] = decodeMissing(t, row)
		if out[i].Kind == "" {
			out[i].Kind = kind
		}
	}
	return out, nil
}

// AppendRetry appends to links/<plural>_missing_retry.csv.
func (s *Store) AppendRetry(kind domain.SourceKind, outcomes []domain.RetryOutcome) error {
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		rows[i] = encodeRetry(o)
	}
	return appendTable(s.linksPath(kind.Plural()+"_missing_retry.csv"), retryHeader, rows)
}

// ReadRetry reads links/<plural>_missing_retry.csv. An absent file yields
// no outcomes.
func (s *Store) ReadRetry(kind domain.SourceKind) ([]domain.RetryOutcome, error) {
	t, err := readOptional(s.linksPath(kind.Plural() + "_missing_retry.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.RetryOutcome, len(t.rows))
	for i, row := range t.rows {
		out[i] = decodeRetry(t, row)
		if out[i].Kind == "" {
			out[i].Kind = kind
		}
	}
	return out, nil
}

// WriteReport writes meta/inventory.json.
func (s *Store) WriteReport(report *domain.CompletenessReport) error {
	if report == nil {
		return fmt.Errorf("nil report: %w", domain.ErrInvalidInput)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding inventory: %w", err)
	}
	return writeAtomic(s.metaPath(inventoryName), append(data, '\n'))
}

// ReadReport reads meta/inventory.json.
func (s *Store) ReadReport() (*domain.CompletenessReport, error) {
	data, err := os.ReadFile(s.metaPath(inventoryName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", inventoryName, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var report domain.CompletenessReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return &report, nil
}
