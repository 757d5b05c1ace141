package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"carepay/internal/domain/audit"
	"carepay/internal/domain/tax"
	"carepay/internal/platform/config"
	"carepay/internal/platform/db"
	"carepay/internal/platform/keystore"
	"carepay/internal/platform/metrics"
)

// RootOptions holds the environment configuration plus global flag overrides.
type RootOptions struct {
	Config     config.Config
	DBPath     string
	KeyDir     string
	KeyBackend keystore.Backend
}

// NewRootCommand builds the carepay command tree. A nil backend uses the OS
// keychain.
func NewRootCommand(backend keystore.Backend) *cobra.Command {
	opts := &RootOptions{KeyBackend: backend}

	cmd := &cobra.Command{
		Use:   "carepay",
		Short: "Household caregiver payroll",
		Long:  "carepay computes caregiver payroll, keeps the tax tables and records payment transactions exactly once.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Config = config.Load()
			if opts.DBPath != "" {
				opts.Config.DatabasePath = opts.DBPath
			}
			if opts.KeyDir != "" {
				opts.Config.KeyDir = opts.KeyDir
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database file (overrides DATABASE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.KeyDir, "key-dir", "", "sealed key directory (overrides KEY_DIR)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTaxCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// openMigrated opens the configured database and brings its schema up to date.
func openMigrated(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*sql.DB, int, error) {
	handle, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, 0, fmt.Errorf("open database: %w", err)
	}
	version, err := db.NewMigrator(handle, db.BaselineVersion, db.LegacyTables, m).Migrate(ctx, db.Steps)
	if err != nil {
		_ = handle.Close()
		return nil, 0, fmt.Errorf("migrations failed: %w", err)
	}
	return handle, version, nil
}

func openTaxStore(ctx context.Context, cfg config.Config) (*tax.Store, func(), error) {
	m := metrics.New()
	handle, _, err := openMigrated(ctx, cfg, m)
	if err != nil {
		return nil, nil, err
	}
	store := tax.NewStore(handle, audit.New(handle, m))
	if cfg.RunSeed {
		if _, err := tax.SeedYears(ctx, store, cfg.TaxSeedFile); err != nil {
			_ = handle.Close()
			return nil, nil, fmt.Errorf("seed tax years: %w", err)
		}
	}
	return store, func() { _ = handle.Close() }, nil
}
