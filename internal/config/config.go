// Package config assembles sfdump's configuration from built-in defaults,
// the TOML config file, .env files and the environment.
//
// Precedence, lowest first: defaults, config file, environment. Command
// line flags are applied on top by the CLI before Validate is called.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// EnvPrefix prefixes every sfdump environment variable.
const EnvPrefix = "SFDUMP"

// DefaultAPIVersion is the Salesforce REST API version used when none is set.
const DefaultAPIVersion = "v60.0"

// Config keys read from the TOML file.
const (
	KeyIncludeLegacy   = "export.include_legacy"
	KeyIncludeModern   = "export.include_modern"
	KeyLegacyWhere     = "export.legacy_where"
	KeyModernWhere     = "export.modern_where"
	KeyIndexBy         = "export.index_by"
	KeyMaxWorkers      = "export.max_workers"
	KeyMaxAttempts     = "export.max_attempts"
	KeyOrder           = "export.order"
	KeyRetryBackoff    = "export.retry_backoff"
	KeyFetchTimeout    = "export.fetch_timeout"
	KeyVerifyChecksums = "export.verify_checksums"
	KeyInstanceURL     = "salesforce.instance_url"
	KeyAPIVersion      = "salesforce.api_version"
	KeyRequestsPerSec  = "salesforce.requests_per_second"
	TableLabelFields   = "label_fields"
)

// Config is everything sfdump reads before flags are applied.
type Config struct {
	Export     domain.ExportConfig
	Salesforce Salesforce

	// ReadOnly is set by commands that only inspect an export root.
	// It is never loaded from files or the environment.
	ReadOnly bool
}

// Salesforce holds the connection settings of the source org.
type Salesforce struct {
	InstanceURL       string  `envconfig:"SF_INSTANCE_URL" validate:"omitempty,url"`
	AccessToken       string  `envconfig:"SF_ACCESS_TOKEN"`
	APIVersion        string  `envconfig:"SF_API_VERSION" validate:"required,startswith=v"`
	RequestsPerSecond float64 `envconfig:"SF_REQUESTS_PER_SECOND" validate:"gte=0"`
}

// Connectable returns an error unless an instance URL and token are set.
func (s Salesforce) Connectable() error {
	if s.InstanceURL == "" || s.AccessToken == "" {
		return fmt.Errorf("%w: SF_INSTANCE_URL and SF_ACCESS_TOKEN must be set", domain.ErrInvalidInput)
	}
	return nil
}

// exportEnv mirrors the ExportConfig fields that may be set from the
// environment. Pointers stay nil when a variable is unset.
type exportEnv struct {
	ChunkTotal      *int           `envconfig:"FILES_CHUNK_TOTAL"`
	ChunkIndex      *int           `envconfig:"FILES_CHUNK_INDEX"`
	Order           *string        `envconfig:"FILES_ORDER"`
	MaxWorkers      *int           `envconfig:"MAX_WORKERS"`
	MaxAttempts     *int           `envconfig:"MAX_ATTEMPTS"`
	RetryBackoff    *time.Duration `envconfig:"RETRY_BACKOFF"`
	FetchTimeout    *time.Duration `envconfig:"FETCH_TIMEOUT"`
	VerifyChecksums *bool          `envconfig:"VERIFY_CHECKSUMS"`
}

// Load builds a Config for the export root outDir. store may be nil.
// envFiles are loaded with godotenv before the environment is read;
// missing files are ignored and variables already set are never
// overridden. With no envFiles, ".env" in the working directory is tried.
func Load(store driven.ConfigStore, outDir string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Export:     domain.DefaultExportConfig(outDir),
		Salesforce: Salesforce{APIVersion: DefaultAPIVersion},
	}
	if store != nil {
		if err := applyStore(store, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func applyStore(store driven.ConfigStore, cfg *Config) error {
	e := &cfg.Export

	if _, ok := store.Get(KeyIncludeLegacy); ok {
		e.IncludeLegacy = store.GetBool(KeyIncludeLegacy)
	}
	if _, ok := store.Get(KeyIncludeModern); ok {
		e.IncludeModern = store.GetBool(KeyIncludeModern)
	}
	if v := store.GetString(KeyLegacyWhere); v != "" {
		e.LegacyWhere = v
	}
	if v := store.GetString(KeyModernWhere); v != "" {
		e.ModernWhere = v
	}
	if v := store.GetStringSlice(KeyIndexBy); len(v) > 0 {
		e.IndexBy = v
	}
	if v := store.GetInt(KeyMaxWorkers); v != 0 {
		e.MaxWorkers = v
	}
	if v := store.GetInt(KeyMaxAttempts); v != 0 {
		e.MaxAttempts = v
	}
	if v := store.GetString(KeyOrder); v != "" {
		e.Order = domain.Order(v)
	}
	if _, ok := store.Get(KeyVerifyChecksums); ok {
		e.VerifyChecksums = store.GetBool(KeyVerifyChecksums)
	}

	var err error
	if e.RetryBackoff, err = durationKey(store, KeyRetryBackoff, e.RetryBackoff); err != nil {
		return err
	}
	if e.FetchTimeout, err = durationKey(store, KeyFetchTimeout, e.FetchTimeout); err != nil {
		return err
	}

	e.LabelFields = e.LabelFields.Merge(store.GetStringMap(TableLabelFields))

	if v := store.GetString(KeyInstanceURL); v != "" {
		cfg.Salesforce.InstanceURL = v
	}
	if v := store.GetString(KeyAPIVersion); v != "" {
		cfg.Salesforce.APIVersion = v
	}
	if v, ok := store.Get(KeyRequestsPerSec); ok {
		switch n := v.(type) {
		case float64:
			cfg.Salesforce.RequestsPerSecond = n
		case int64:
			cfg.Salesforce.RequestsPerSecond = float64(n)
		case int:
			cfg.Salesforce.RequestsPerSecond = float64(n)
		default:
			return fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, KeyRequestsPerSec)
		}
	}
	return nil
}

func durationKey(store driven.ConfigStore, key string, fallback time.Duration) (time.Duration, error) {
	v := store.GetString(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	return d, nil
}

func applyEnv(cfg *Config) error {
	var env exportEnv
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if err := envconfig.Process("", &cfg.Salesforce); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	e := &cfg.Export
	if env.ChunkTotal != nil {
		e.ChunkTotal = *env.ChunkTotal
	}
	if env.ChunkIndex != nil {
		e.ChunkIndex = *env.ChunkIndex
	}
	if env.Order != nil {
		e.Order = domain.Order(*env.Order)
	}
	if env.MaxWorkers != nil {
		e.MaxWorkers = *env.MaxWorkers
	}
	if env.MaxAttempts != nil {
		e.MaxAttempts = *env.MaxAttempts
	}
	if env.RetryBackoff != nil {
		e.RetryBackoff = *env.RetryBackoff
	}
	if env.FetchTimeout != nil {
		e.FetchTimeout = *env.FetchTimeout
	}
	if env.VerifyChecksums != nil {
		e.VerifyChecksums = *env.VerifyChecksums
	}
	return nil
}
