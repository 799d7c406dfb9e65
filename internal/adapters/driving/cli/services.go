package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ksteptoe/sfdump/internal/adapters/driven/metrics/prom"
	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/blobfs"
	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/csvfile"
	"github.com/ksteptoe/sfdump/internal/adapters/driven/storage/sqlite"
	"github.com/ksteptoe/sfdump/internal/config"
	"github.com/ksteptoe/sfdump/internal/connectors/salesforce"
	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/core/services"
)

// Services is the pipeline wired to one export root. Read-only
// services carry only Inventory and History.
type Services struct {
	Exporter     driving.Exporter
	Verifier     driving.Verifier
	Retrier      driving.Retrier
	Consolidator driving.Consolidator
	Inventory    driving.InventoryReporter
	History      driving.HistoryReader

	// APIUsage reports the org's API usage as last seen by the client.
	// Nil when no source is configured.
	APIUsage func() (used, limit int)

	closers []func() error
}

// Close releases the ledger and other resources.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ServiceFactory builds the services for a loaded configuration.
type ServiceFactory func(ctx context.Context, cfg *config.Config) (*Services, error)

// newServices is replaced in tests.
var newServices ServiceFactory = DefaultServices

// SetServiceFactory overrides how commands build their services.
func SetServiceFactory(f ServiceFactory) {
	if f != nil {
		newServices = f
	}
}

// DefaultServices wires the filesystem stores, the SQLite ledger, the
// Prometheus textfile and, when credentials are set, the Salesforce client.
func DefaultServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	blobs, err := blobfs.NewStore(cfg.Export.OutDir)
	if err != nil {
		return nil, err
	}
	root := blobs.Root()
	store := csvfile.NewStore(root)

	if cfg.ReadOnly {
		return readOnlyServices(blobs, store)
	}

	ledger, err := sqlite.NewStore(filepath.Join(root, csvfile.MetaDir))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	chunk := cfg.Export.ChunkLabel()
	metrics := prom.New(filepath.Join(root, csvfile.MetaDir, prom.FileName(chunk)), chunk)

	var source driven.FileSource
	var usage func() (int, int)
	if cfg.Salesforce.Connectable() == nil {
		client, err := salesforce.NewClient(ctx, salesforce.Config{
			InstanceURL:       cfg.Salesforce.InstanceURL,
			AccessToken:       cfg.Salesforce.AccessToken,
			APIVersion:        cfg.Salesforce.APIVersion,
			RequestsPerSecond: cfg.Salesforce.RequestsPerSecond,
		})
		if err != nil {
			ledger.Close()
			return nil, err
		}
		source = client
		usage = client.RateLimiter().Usage
	}

	lister := services.NewLister(source, metrics)
	materializer := services.NewMaterializer(source, blobs, metrics, services.MaterializeConfig{
		MaxAttempts:  cfg.Export.MaxAttempts,
		Backoff:      cfg.Export.RetryBackoff,
		FetchTimeout: cfg.Export.FetchTimeout,
	})
	consolidator := services.NewConsolidator(store)

	return &Services{
		Exporter: services.NewExportService(
			lister,
			materializer,
			services.NewIndexBuilder(source),
			consolidator,
			blobs,
			ledger,
			store,
			metrics,
		),
		Verifier:     services.NewVerifyService(lister, blobs, ledger, store),
		Retrier:      services.NewRetryService(materializer, ledger, store, metrics),
		Consolidator: consolidator,
		Inventory:    services.NewInventoryService(blobs, ledger, store),
		History:      services.NewHistoryService(ledger),
		APIUsage:     usage,
		closers:      []func() error{ledger.Close},
	}, nil
}

// readOnlyServices inspects an existing export root without creating
// anything in it. A root with no ledger reports an empty history.
func readOnlyServices(blobs *blobfs.Store, store *csvfile.Store) (*Services, error) {
	info, err := os.Stat(blobs.Root())
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("export root %s: %w", blobs.Root(), domain.ErrNotFound)
	}

	ledger, err := sqlite.OpenExisting(filepath.Join(blobs.Root(), csvfile.MetaDir))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &Services{
			Inventory: services.NewInventoryService(blobs, nil, store),
			History:   services.NewHistoryService(nil),
		}, nil
	case err != nil:
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &Services{
		Inventory: services.NewInventoryService(blobs, ledger, store),
		History:   services.NewHistoryService(ledger),
		closers:   []func() error{ledger.Close},
	}, nil
}
