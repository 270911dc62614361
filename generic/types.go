/*
Package generic provides the core reservation engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for managing
  turn-scoped claims on a finite stockpile. Whether the pool holds canned
  food, steel, cash or labor points, the same engine handles reservation,
  release, commitment and the consumption journal.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 units, $100, 3 labor points)
  - Transaction: An immutable journal entry recording a stock change
  - Turn: The game turn a reservation or transaction belongs to
  - Nation/Category/Reservation IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing nation/category IDs
  3. Determinism: Reservation IDs come from a per-nation sequence
  4. Auditability: Every committed unit leaves a journal entry with an idempotency key

USAGE:
  amount := generic.NewAmountFromInt(5, generic.UnitGoods)
  tx := generic.Transaction{
      NationID: "player",
      Resource: economy.CannedFood,
      Delta:    amount.Neg(),
      Type:     generic.TxConsumption,
  }

SEE ALSO:
  - pool.go: Per-resource reservation bookkeeping
  - account.go: Atomic multi-resource unit holds
  - ledger.go: Journal persistence interface
*/
package generic

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitGoods Unit = "units"
	UnitCash  Unit = "cash"
	UnitLabor Unit = "labor"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) String() string               { return fmt.Sprintf("%s %s", a.Value.String(), a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// Units returns how many whole multiples of per fit into a, floored and
// saturated at math.MaxInt64. A non-positive per means the amount places no
// limit and returns -1.
func (a Amount) Units(per Amount) int64 {
	if !per.IsPositive() {
		return -1
	}
	if !a.IsPositive() {
		return 0
	}
	q := a.Value.Div(per.Value).Floor()
	if q.GreaterThanOrEqual(maxUnits) {
		return math.MaxInt64
	}
	return q.IntPart()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type NationID string
type CategoryID string
type TransactionID string

// ReservationID identifies one reserved unit. A unit that draws on several
// pools is registered under the same ID in each of them.
type ReservationID uint64

func (id ReservationID) String() string { return fmt.Sprintf("r%d", uint64(id)) }

// Turn is the game turn counter. Turn 1 is the first PlayerTurn.
type Turn int

// ResourceKind identifies what kind of stock a pool tracks.
// This is an interface so domain packages define their own concrete types.
// The generic package has NO knowledge of specific goods.
//
// Domain packages implement this:
//
//	// In economy/types.go
//	type Good string
//	func (g Good) ResourceID() string { return string(g) }
//	func (g Good) ResourceDomain() string { return "goods" }
//	const CannedFood Good = "canned_food"
type ResourceKind interface {
	// ResourceID returns the unique identifier for this resource kind.
	ResourceID() string

	// ResourceDomain returns which domain this resource belongs to.
	ResourceDomain() string

	// ResourceUnit returns the unit its amounts are measured in.
	ResourceUnit() Unit
}

// =============================================================================
// TRANSACTION - Journal entry for a committed stock change
// =============================================================================

type TransactionType string

const (
	TxDeposit     TransactionType = "deposit"     // Stock arrived from outside the engine
	TxConsumption TransactionType = "consumption" // Reserved unit committed at finalize
	TxAdjustment  TransactionType = "adjustment"  // Invariant clamp or manual correction
)

// Transaction is append-only. Live reservations are never journaled; only
// what actually left or entered the stockpile is.
type Transaction struct {
	ID             TransactionID
	NationID       NationID
	Resource       ResourceKind
	Turn           Turn
	Delta          Amount
	Type           TransactionType
	CategoryID     CategoryID
	ReservationID  ReservationID
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
	CreatedAt      time.Time
}

// ConsumptionKey is the idempotency key for committing one reserved unit.
// Replaying a finalize produces the same keys and is rejected by the ledger.
func ConsumptionKey(nation NationID, turn Turn, category CategoryID, id ReservationID, resource ResourceKind) string {
	return fmt.Sprintf("%s/%d/%s/%s/%s", nation, turn, category, id, resource.ResourceID())
}
