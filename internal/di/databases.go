// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/config"
	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/modules/washsale"
)

// InitializeDatabases opens both databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. ledger.db - books of record (accounts, journal, lots, positions,
	//    applied wash-sale adjustments). Everything that must commit
	//    atomically lives here.
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/ledger.db",
		Profile: database.ProfileLedger, // Maximum safety for the books
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 2. cache.db - wash-sale scan reports. Rebuildable, so the fast
	//    profile is fine.
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Schemas are idempotent; applying on every start is the upgrade path.
	for _, init := range []struct {
		name string
		fn   func() error
	}{
		{"ledger", func() error { return ledger.InitSchema(ledgerDB.Conn()) }},
		{"lots", func() error { return lots.InitSchema(ledgerDB.Conn()) }},
		{"options", func() error { return options.InitSchema(ledgerDB.Conn()) }},
		{"washsale", func() error { return washsale.InitSchema(ledgerDB.Conn()) }},
		{"washsale cache", func() error { return washsale.InitCacheSchema(cacheDB.Conn()) }},
	} {
		if err := init.fn(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply %s schema: %w", init.name, err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
