/*
pool.go - Per-resource reservation bookkeeping

PURPOSE:
  A Pool tracks one resource kind for one nation: how much is physically
  on hand, and how much of it has been promised to allocation categories
  for the current turn. Reservations are claims, not consumption. Stock
  only leaves the pool when a reservation is committed at the turn boundary.

INVARIANTS:
  1. 0 <= reserved <= on_hand
  2. reserved == sum of live reservation amounts
  3. available = on_hand - reserved, never negative
  4. Each reservation ID is live at most once, and ends exactly once
     (released or committed)

RESERVATION LIFECYCLE:
  live ──Release──► released   (no stock change; repeated Release is a no-op)
    │
    └──Commit───► committed  (on_hand -= amount, reserved -= amount)

  Release of an ID this pool never issued returns ErrUnknownReservation and
  is logged; it is a distinct condition from a repeated release.

THREAD SAFETY:
  Pools are NOT safe for concurrent use. Each nation has a single writer;
  see allocation.Nation.

SEE ALSO:
  - account.go: Reserves one unit across several pools atomically
  - errors.go: InsufficientResourceError, InvariantViolationError
*/
package generic

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESERVATION
// =============================================================================

// ReservationState tracks where a reservation is in its lifecycle.
type ReservationState string

const (
	ReservationLive      ReservationState = "live"
	ReservationReleased  ReservationState = "released"
	ReservationCommitted ReservationState = "committed"
)

// Reservation is a claim on part of a pool for the current turn.
type Reservation struct {
	ID       ReservationID
	Owner    CategoryID
	Resource ResourceKind
	Amount   Amount
	Turn     Turn
}

// Sequence hands out reservation IDs for one nation. IDs are consumed only
// when a reservation succeeds, so identical call sequences give identical IDs.
type Sequence struct {
	next uint64
}

func NewSequence() *Sequence { return &Sequence{next: 1} }

func (s *Sequence) Peek() ReservationID { return ReservationID(s.next) }
func (s *Sequence) Advance()            { s.next++ }

// =============================================================================
// POOL
// =============================================================================

type Pool struct {
	nation   NationID
	resource ResourceKind
	onHand   decimal.Decimal
	reserved decimal.Decimal
	live     map[ReservationID]Reservation
	closed   map[ReservationID]ReservationState
	seq      *Sequence
	log      *slog.Logger
}

// NewPool creates an empty pool. A nil sequence gives the pool its own;
// accounts pass a shared one so IDs are unique across a nation's pools.
func NewPool(nation NationID, resource ResourceKind, seq *Sequence, log *slog.Logger) *Pool {
	if seq == nil {
		seq = NewSequence()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		nation:   nation,
		resource: resource,
		onHand:   decimal.Zero,
		reserved: decimal.Zero,
		live:     make(map[ReservationID]Reservation),
		closed:   make(map[ReservationID]ReservationState),
		seq:      seq,
		log:      log.With("nation", string(nation), "resource", resource.ResourceID()),
	}
}

func (p *Pool) Resource() ResourceKind { return p.resource }
func (p *Pool) Nation() NationID       { return p.nation }
func (p *Pool) OnHand() Amount         { return p.amount(p.onHand) }
func (p *Pool) Reserved() Amount       { return p.amount(p.reserved) }
func (p *Pool) Live() int              { return len(p.live) }

// Available returns on_hand - reserved, clamped at zero.
func (p *Pool) Available() Amount {
	avail := p.onHand.Sub(p.reserved)
	if avail.IsNegative() {
		return p.amount(decimal.Zero)
	}
	return p.amount(avail)
}

// HeldBy sums the live reservations owned by one category.
func (p *Pool) HeldBy(owner CategoryID) Amount {
	total := decimal.Zero
	for _, r := range p.live {
		if r.Owner == owner {
			total = total.Add(r.Amount.Value)
		}
	}
	return p.amount(total)
}

// Reservation returns a live reservation by ID.
func (p *Pool) Reservation(id ReservationID) (Reservation, bool) {
	r, ok := p.live[id]
	return r, ok
}

// State reports the lifecycle state of an ID, or "" if the pool never saw it
// (or it was pruned at a turn boundary).
func (p *Pool) State(id ReservationID) ReservationState {
	if _, ok := p.live[id]; ok {
		return ReservationLive
	}
	return p.closed[id]
}

// Reservations lists live reservations ordered by ID.
func (p *Pool) Reservations() []Reservation {
	out := make([]Reservation, 0, len(p.live))
	for _, r := range p.live {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// RESERVE / RELEASE / COMMIT
// =============================================================================

// Reserve claims amount for owner and returns the new reservation ID.
func (p *Pool) Reserve(owner CategoryID, amount Amount, turn Turn) (ReservationID, error) {
	id := p.seq.Peek()
	if err := p.reserveAs(id, owner, amount, turn); err != nil {
		return 0, err
	}
	p.seq.Advance()
	return id, nil
}

// ReserveMany claims up to n units of perUnit each, one ID per unit.
// It stops at the first shortage and returns the IDs obtained so far
// together with the shortage error.
func (p *Pool) ReserveMany(owner CategoryID, n int64, perUnit Amount, turn Turn) ([]ReservationID, error) {
	if n < 0 {
		return nil, &InvalidRequestError{Field: "count", Value: fmt.Sprint(n), Reason: "must not be negative"}
	}
	ids := make([]ReservationID, 0, min(n, 64))
	for i := int64(0); i < n; i++ {
		id, err := p.Reserve(owner, perUnit, turn)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Pool) reserveAs(id ReservationID, owner CategoryID, amount Amount, turn Turn) error {
	if !amount.IsPositive() {
		return &InvalidRequestError{Field: "amount", Value: amount.Value.String(), Reason: "must be positive"}
	}
	if _, exists := p.live[id]; exists {
		return &InvariantViolationError{
			NationID: p.nation, Resource: p.resource, ReservationID: id,
			Code: "duplicate_reservation", Detail: "reservation id already live",
		}
	}
	avail := p.Available()
	if amount.GreaterThan(avail) {
		return &InsufficientResourceError{
			NationID:  p.nation,
			Resource:  p.resource,
			Available: avail,
			Requested: amount,
			Shortfall: amount.Sub(avail),
		}
	}
	p.reserved = p.reserved.Add(amount.Value)
	p.live[id] = Reservation{ID: id, Owner: owner, Resource: p.resource, Amount: p.amount(amount.Value), Turn: turn}
	return nil
}

// unreserve drops a live reservation without leaving a tombstone. Used to
// roll back a partially reserved multi-pool unit whose ID was never issued.
func (p *Pool) unreserve(id ReservationID) {
	if r, ok := p.live[id]; ok {
		p.reserved = p.reserved.Sub(r.Amount.Value)
		delete(p.live, id)
	}
}

// Release returns a live reservation to the available stock. Releasing an
// already released or committed ID is a no-op.
func (p *Pool) Release(id ReservationID) error {
	if r, ok := p.live[id]; ok {
		p.reserved = p.reserved.Sub(r.Amount.Value)
		delete(p.live, id)
		p.closed[id] = ReservationReleased
		return nil
	}
	if _, ok := p.closed[id]; ok {
		return nil
	}
	p.log.Warn("release of unknown reservation", "reservation", id.String())
	return fmt.Errorf("%w: %s", ErrUnknownReservation, id)
}

// Commit consumes a live reservation: on_hand and reserved both drop by its
// amount. The committed amount is returned. If on_hand cannot cover it the
// consumption is clamped to on_hand and an InvariantViolationError is returned
// alongside the clamped amount.
func (p *Pool) Commit(id ReservationID) (Amount, error) {
	r, ok := p.live[id]
	if !ok {
		switch p.closed[id] {
		case ReservationCommitted:
			return p.amount(decimal.Zero), &InvariantViolationError{
				NationID: p.nation, Resource: p.resource, ReservationID: id,
				Code: "double_commit", Detail: "reservation already committed",
			}
		case ReservationReleased:
			return p.amount(decimal.Zero), &InvariantViolationError{
				NationID: p.nation, Resource: p.resource, ReservationID: id,
				Code: "commit_after_release", Detail: "reservation was released",
			}
		}
		return p.amount(decimal.Zero), fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}

	delete(p.live, id)
	p.closed[id] = ReservationCommitted
	p.reserved = p.reserved.Sub(r.Amount.Value)

	consumed := r.Amount.Value
	var err error
	if consumed.GreaterThan(p.onHand) {
		err = &InvariantViolationError{
			NationID: p.nation, Resource: p.resource, ReservationID: id,
			Code:   "commit_exceeds_on_hand",
			Detail: fmt.Sprintf("commit %s with on_hand %s, clamped", consumed, p.onHand),
		}
		consumed = decimal.Max(p.onHand, decimal.Zero)
	}
	p.onHand = p.onHand.Sub(consumed)
	if p.reserved.IsNegative() {
		p.reserved = decimal.Zero
	}
	return p.amount(consumed), err
}

// =============================================================================
// STOCK CHANGES FROM OUTSIDE THE ENGINE
// =============================================================================

// Deposit adds stock that arrived this turn (production output, transport).
func (p *Pool) Deposit(amount Amount) error {
	if amount.IsNegative() {
		return &InvalidRequestError{Field: "deposit", Value: amount.Value.String(), Reason: "must not be negative"}
	}
	p.onHand = p.onHand.Add(amount.Value)
	return nil
}

// Sync replaces on_hand with the stockpile's figure. Only legal while nothing
// is reserved, which is the case at the start of a PlayerTurn.
func (p *Pool) Sync(onHand Amount) error {
	if len(p.live) > 0 || p.reserved.IsPositive() {
		return fmt.Errorf("sync %s: %w", p.resource.ResourceID(), ErrLiveReservations)
	}
	if onHand.IsNegative() {
		return &InvalidRequestError{Field: "on_hand", Value: onHand.Value.String(), Reason: "must not be negative"}
	}
	p.onHand = onHand.Value
	return nil
}

// Prune forgets released and committed IDs. Called once per turn so the
// tombstone set does not grow without bound; a release of a pruned ID is
// reported as unknown.
func (p *Pool) Prune() {
	p.closed = make(map[ReservationID]ReservationState)
}

// CheckInvariant verifies 0 <= reserved <= on_hand and that reserved matches
// the live reservations. A drifted reserved counter is repaired from the
// live set; the violation is still reported.
func (p *Pool) CheckInvariant() error {
	sum := decimal.Zero
	for _, r := range p.live {
		sum = sum.Add(r.Amount.Value)
	}
	if !sum.Equal(p.reserved) {
		drift := p.reserved
		p.reserved = sum
		return &InvariantViolationError{
			NationID: p.nation, Resource: p.resource,
			Code:   "reserved_drift",
			Detail: fmt.Sprintf("reserved counter %s, live sum %s, repaired", drift, sum),
		}
	}
	if p.reserved.GreaterThan(p.onHand) {
		return &InvariantViolationError{
			NationID: p.nation, Resource: p.resource,
			Code:   "reserved_exceeds_on_hand",
			Detail: fmt.Sprintf("reserved %s > on_hand %s", p.reserved, p.onHand),
		}
	}
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

// PoolView is a read-only projection for the UI and save points.
type PoolView struct {
	Resource  ResourceKind
	OnHand    Amount
	Reserved  Amount
	Available Amount
	Live      int
}

func (p *Pool) View() PoolView {
	return PoolView{
		Resource:  p.resource,
		OnHand:    p.OnHand(),
		Reserved:  p.Reserved(),
		Available: p.Available(),
		Live:      len(p.live),
	}
}

func (p *Pool) amount(v decimal.Decimal) Amount {
	return Amount{Value: v, Unit: p.resource.ResourceUnit()}
}
