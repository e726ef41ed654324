// Package store provides persistent storage for scopebook using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with multiple
// specialized interfaces:
//
//   - EstimateStore: Estimate, section and item CRUD, ordering, bulk replace
//   - ViewStore: View lifecycle, per-view settings, public token lookups
//   - VersionStore: Immutable snapshots, version reads, restore
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Data Models
//
// Live models:
//
//   - Estimate: Root aggregate owned by one owner
//   - Section: Ordered grouping of items
//   - Item: Priced line with a quantity shared across views
//   - View: Named lens with its own pricing/visibility and a public link token
//   - SectionSetting / ItemSetting: The per-(view, entity) settings matrix
//
// Frozen models (one closed graph per version, ids never shared with live
// state or other versions):
//
//   - Version: Snapshot header with a per-estimate increasing number
//   - VersionSection / VersionItem / VersionView: Frozen entities carrying
//     the live id at freeze time for traceability only
//   - VersionSectionSetting / VersionItemSetting: Frozen settings keyed by
//     version-scoped ids exclusively
//
// # Consistency
//
// Every multi-row mutation (creation + settings backfill, view
// duplication, snapshot, restore, bulk replace) runs in a single
// transaction via dbx.WithTx, so readers observe either the fully-old or
// the fully-new state. The settings matrix is complete by construction:
// creating a section/item backfills a row into every view, and creating a
// view seeds a row for every section/item, all inside the creating
// transaction.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Write transactions open with the immediate lock (_txlock=immediate) so
// concurrent writers queue instead of failing at commit.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Entity missing, or its estimate is not owned by the
//     caller (intentionally indistinguishable)
//   - ErrValidation: Rejected input, checked before any write
//   - ErrLastView: Deleting the only view of an estimate
//
// All methods accept context.Context for cancellation support.
package store
