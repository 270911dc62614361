/*
ledger.go - Append-only consumption journal

PURPOSE:
  The Ledger records what actually left or entered a nation's stockpile:
  deposits from outside the engine and the consumption of every committed
  unit at finalize. It is the audit trail behind the pools' on_hand figures.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. NO LIVE RESERVATIONS: Reservations are turn-local claims and are never
     journaled. Only commits are.
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates).
     A replayed finalize hits ErrDuplicateIdempotencyKey instead of
     double-recording consumption.

SEE ALSO:
  - store.go: Low-level persistence interface
  - store/sqlite/sqlite.go: Durable implementation
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for stock that entered or left a nation.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	// Used at finalize: one nation's consumption for a turn is all-or-nothing.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for nation+resource, in append order.
	Transactions(ctx context.Context, nation NationID, resourceID string) ([]Transaction, error)

	// TransactionsForTurn returns every transaction a nation recorded in a turn.
	TransactionsForTurn(ctx context.Context, nation NationID, turn Turn) ([]Transaction, error)

	// NetChange sums the deltas for nation+resource.
	NetChange(ctx context.Context, nation NationID, resource ResourceKind) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, nation NationID, resourceID string) ([]Transaction, error) {
	return l.Store.Load(ctx, nation, resourceID)
}

func (l *DefaultLedger) TransactionsForTurn(ctx context.Context, nation NationID, turn Turn) ([]Transaction, error) {
	return l.Store.LoadTurn(ctx, nation, turn)
}

func (l *DefaultLedger) NetChange(ctx context.Context, nation NationID, resource ResourceKind) (Amount, error) {
	txs, err := l.Store.Load(ctx, nation, resource.ResourceID())
	if err != nil {
		return Amount{}, err
	}
	total := NewAmountFromInt(0, resource.ResourceUnit())
	for _, tx := range txs {
		total = total.Add(tx.Delta)
	}
	return total, nil
}
