// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances
// and is passed to the server for access to services.
package di

import (
	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/modules/importer"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/modules/lots"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/modules/washsale"
)

// Container holds all dependencies for the application.
//
// Architecture:
// - Databases: ledger.db holds the books (accounts, journal, lots,
//   positions, applied adjustments) so every matching operation commits
//   in one transaction; cache.db holds scan report blobs.
// - Repositories: data access layer over the ledger database.
// - Services: business logic (posting, lot matching, option lifecycle,
//   wash-sale detection).
type Container struct {
	// Databases
	LedgerDB *database.DB // Books of record, maximum durability
	CacheDB  *database.DB // Ephemeral scan reports, rebuildable

	// Repositories
	LedgerRepo   *ledger.Repository
	LotsRepo     *lots.Repository
	OptionsRepo  *options.Repository
	WashSaleRepo *washsale.Repository

	// Services
	LedgerService  *ledger.Service
	LotsService    *lots.Service
	OptionsService *options.Service
	WashSaleCache  *washsale.Cache
	Detector       *washsale.Detector
	Applier        *washsale.Applier
	Importer       *importer.Importer

	// Configuration resolved at wire time
	DefaultLotMethod lots.Method
}

// Close closes all database connections.
func (c *Container) Close() {
	if c.LedgerDB != nil {
		c.LedgerDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
