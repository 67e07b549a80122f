// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/config"
	"github.com/aristath/bookkeeper/internal/modules/importer"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/modules/washsale"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases and schemas
// 2. Initialize repositories
// 3. Initialize services
// 4. Seed the chart of accounts
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	defaultMethod, err := lots.ParseMethod(cfg.DefaultLotMethod)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("invalid default lot method: %w", err)
	}
	container.DefaultLotMethod = defaultMethod

	ledgerConn := container.LedgerDB.Conn()

	// Repositories
	container.LedgerRepo = ledger.NewRepository(ledgerConn, log)
	container.LotsRepo = lots.NewRepository(ledgerConn, log)
	container.OptionsRepo = options.NewRepository(ledgerConn, log)
	container.WashSaleRepo = washsale.NewRepository(ledgerConn, log)

	// Services
	container.LedgerService = ledger.NewService(ledgerConn, container.LedgerRepo, log)
	container.LotsService = lots.NewService(ledgerConn, container.LotsRepo, container.LedgerService, log)
	container.OptionsService = options.NewService(ledgerConn, container.OptionsRepo, container.LedgerService, log)
	container.WashSaleCache = washsale.NewCache(container.CacheDB.Conn(), log)
	container.Detector = washsale.NewDetector(
		container.LotsRepo,
		container.OptionsRepo,
		container.WashSaleRepo,
		container.WashSaleCache,
		cfg.BaseCurrency,
		log,
	)
	container.Applier = washsale.NewApplier(ledgerConn, container.Detector)
	container.Importer = importer.New(container.LotsService, container.OptionsService, defaultMethod, log)

	if err := container.LedgerService.EnsureDefaultAccounts(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to seed chart of accounts: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
