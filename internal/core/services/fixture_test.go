package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/blobfs"
	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/csvfile"
	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/memory"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// fakeSource is an in-memory driven.FileSource.
type fakeSource struct {
	mu sync.Mutex

	records map[domain.SourceKind][]domain.FileRecord
	bodies  map[string][]byte
	links   []domain.FileLink
	labels  map[string]map[string]string

	// failures are returned, in order, by the next fetches of a record.
	failures map[string][]error

	// block makes Fetch wait for ctx to end.
	block bool

	listErr  error
	linkErr  error
	labelErr map[string]error

	fetches    map[string]int
	labelCalls map[string][][]string
	linkCalls  int
}

// Verify interface compliance.
var _ driven.FileSource = (*fakeSource)(nil)

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:    make(map[domain.SourceKind][]domain.FileRecord),
		bodies:     make(map[string][]byte),
		labels:     make(map[string]map[string]string),
		failures:   make(map[string][]error),
		labelErr:   make(map[string]error),
		fetches:    make(map[string]int),
		labelCalls: make(map[string][][]string),
	}
}

func (f *fakeSource) ListFiles(_ context.Context, kind domain.SourceKind, _ domain.ListFilter) ([]domain.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.FileRecord(nil), f.records[kind]...), nil
}

func (f *fakeSource) ListLinks(_ context.Context, documentIDs []string) ([]domain.FileLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	wanted := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}
	var out []domain.FileLink
	for _, l := range f.links {
		if wanted[l.DocumentID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) QueryLabels(_ context.Context, objectType, _ string, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls[objectType] = append(f.labelCalls[objectType], append([]string(nil), ids...))
	if err := f.labelErr[objectType]; err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if label, ok := f.labels[objectType][id]; ok {
			out[id] = label
		}
	}
	return out, nil
}

func (f *fakeSource) Fetch(ctx context.Context, rec domain.FileRecord) (io.ReadCloser, error) {
	f.mu.Lock()
	f.fetches[rec.ID]++
	var failure error
	if queue := f.failures[rec.ID]; len(queue) > 0 {
		failure, f.failures[rec.ID] = queue[0], queue[1:]
	}
	body, ok := f.bodies[rec.ID]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", rec.ID, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeSource) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func (f *fakeSource) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

func (f *fakeSource) fail(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], errs...)
}

// addModern registers n content versions, each linked to one Account.
func (f *fakeSource) addModern(n int) []domain.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []domain.FileRecord
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("068%03d", i)
		body := []byte("content of " + id)
		rec := domain.FileRecord{
			ID:         id,
			DocumentID: fmt.Sprintf("069%03d", i),
			Kind:       domain.KindModernDocument,
			Title:      fmt.Sprintf("doc %d.txt", i),
			Extension:  "txt",
			SizeBytes:  int64(len(body)),
		}
		f.bodies[id] = body
		f.links = append(f.links, domain.FileLink{
			ID:               fmt.Sprintf("06A%03d", i),
			DocumentID:       rec.DocumentID,
			LinkedEntityID:   fmt.Sprintf("001%03d", i),
			LinkedEntityType: "Account",
		})
		recs = append(recs, rec)
	}
	f.records[domain.KindModernDocument] = append(f.records[domain.KindModernDocument], recs...)
	return recs
}

// addLegacy registers n attachments on Opportunities.
func (f *fakeSource) addLegacy(n int) []domain.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []domain.FileRecord
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("00P%03d", i)
		body := []byte("attachment " + id)
		rec := domain.FileRecord{
			ID:         id,
			Kind:       domain.KindLegacyAttachment,
			ParentType: "Opportunity",
			ParentID:   fmt.Sprintf("006%03d", i),
			Title:      fmt.Sprintf("note %d.txt", i),
			SizeBytes:  int64(len(body)),
		}
		f.bodies[id] = body
		recs = append(recs, rec)
	}
	f.records[domain.KindLegacyAttachment] = append(f.records[domain.KindLegacyAttachment], recs...)
	return recs
}

// fixture wires services to real local adapters in a temp export root.
type fixture struct {
	root    string
	source  *fakeSource
	blobs   *blobfs.Store
	store   *csvfile.Store
	results *memory.ResultStore
	sleeps  []time.Duration
	mu      sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	blobs, err := blobfs.NewStore(root)
	require.NoError(t, err)
	return &fixture{
		root:    root,
		source:  newFakeSource(),
		blobs:   blobs,
		store:   csvfile.NewStore(root),
		results: memory.NewResultStore(),
	}
}

func (f *fixture) materializer(cfg MaterializeConfig) *Materializer {
	m := NewMaterializer(f.source, f.blobs, nil, cfg)
	m.sleep = func(_ context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return nil
	}
	return m
}

func (f *fixture) exporter(cfg MaterializeConfig) *ExportService {
	return NewExportService(
		NewLister(f.source, nil),
		f.materializer(cfg),
		NewIndexBuilder(f.source),
		NewConsolidator(f.store),
		f.blobs,
		f.results,
		f.store,
		nil,
	)
}

func (f *fixture) retrier(cfg MaterializeConfig) *RetryService {
	return NewRetryService(f.materializer(cfg), f.results, f.store, nil)
}

func (f *fixture) exportConfig() domain.ExportConfig {
	cfg := domain.DefaultExportConfig(f.root)
	cfg.MaxWorkers = 4
	return cfg
}

// put writes a file under the export root.
func (f *fixture) put(t *testing.T, rel string, data []byte) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))
}

func (f *fixture) exists(rel string) bool {
	info, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(rel)))
	return err == nil && info.Size() > 0
}

func ids(records []domain.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

func missingIDs(entries []domain.MissingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RecordID
	}
	sort.Strings(out)
	return out
}
