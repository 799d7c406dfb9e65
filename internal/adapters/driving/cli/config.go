package cli

import (
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/adapters/driven/config/file"
	"github.com/ksteptoe/sfdump/internal/config"
)

// loadConfig reads the config file, .env files and environment for an
// export root. Flags are applied by each command afterwards.
func loadConfig(outDir string) (*config.Config, error) {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(store, outDir, envFiles...)
}

// readOnly marks commands that must not create anything in the export root.
func readOnly(cfg *config.Config) { cfg.ReadOnly = true }

// withServices loads config for dir, lets apply adjust it from flags,
// validates it and runs fn with services built for it.
func withServices(cmd *cobra.Command, dir string, apply func(*config.Config), fn func(*Services, *config.Config) error) error {
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := newServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(svc, cfg)
}
