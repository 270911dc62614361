/*
store.go - Persistence interfaces for the journal and save points

PURPOSE:
  Defines the interface between the engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:          Journal persistence (append, load, exists)
  SavePointStore: Turn-boundary snapshots of a nation's stock

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for journal persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for nation+resource, in append order.
	Load(ctx context.Context, nation NationID, resourceID string) ([]Transaction, error)

	// LoadTurn returns all transactions a nation recorded in one turn.
	LoadTurn(ctx context.Context, nation NationID, turn Turn) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// SavePointStore persists save points. Save points are overwritten per
// nation+turn; they are a recovery aid, not part of the audit trail.
type SavePointStore interface {
	SaveSavePoint(ctx context.Context, sp SavePoint) error
	LatestSavePoint(ctx context.Context, nation NationID) (*SavePoint, error)
}
