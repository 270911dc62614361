/*
account.go - A nation's pools and its multi-resource unit holds

PURPOSE:
  An Account owns one Pool per resource kind for a single nation. Most
  allocation units draw on several pools at once: one recruit costs a can
  of food, a set of clothing and a piece of furniture. ReserveUnit claims
  all of a unit's inputs atomically under ONE reservation ID; either every
  pool is reserved or none is.

UNIT LIFECYCLE:
  ReserveUnit ──► live ──ReleaseUnit──► released (all pools)
                    └────CommitUnit──► committed (all pools)

ROLLBACK:
  If the third of three inputs is short, the first two are unreserved
  without a trace and the sequence does not advance. The caller sees a
  single InsufficientResourceError naming the short resource.

THREAD SAFETY:
  Not safe for concurrent use. allocation.Nation serializes access.

SEE ALSO:
  - pool.go: Single-resource bookkeeping
  - savepoint.go: Snapshot of on-hand stock at a turn boundary
*/
package generic

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COST - Per-unit resource requirement
// =============================================================================

// CostLine is one input of a unit: how much of one resource it needs.
type CostLine struct {
	Resource ResourceKind
	Amount   Amount
}

// Cost is the full input list of one unit.
type Cost []CostLine

// Normalize merges duplicate resources, drops non-positive lines and sorts by
// resource ID so multi-pool reservation order is deterministic.
func (c Cost) Normalize() Cost {
	byID := make(map[string]CostLine)
	for _, line := range c {
		if line.Resource == nil || !line.Amount.IsPositive() {
			continue
		}
		id := line.Resource.ResourceID()
		if existing, ok := byID[id]; ok {
			existing.Amount = existing.Amount.Add(line.Amount)
			byID[id] = existing
			continue
		}
		byID[id] = line
	}
	out := make(Cost, 0, len(byID))
	for _, line := range byID {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource.ResourceID() < out[j].Resource.ResourceID() })
	return out
}

// Scale multiplies every line by n.
func (c Cost) Scale(n int64) Cost {
	out := make(Cost, len(c))
	factor := decimal.NewFromInt(n)
	for i, line := range c {
		out[i] = CostLine{Resource: line.Resource, Amount: line.Amount.Mul(factor)}
	}
	return out
}

// Add merges two costs.
func (c Cost) Add(other Cost) Cost {
	merged := append(append(Cost{}, c...), other...)
	return merged.Normalize()
}

// =============================================================================
// ACCOUNT
// =============================================================================

type unitHold struct {
	owner     CategoryID
	turn      Turn
	resources []ResourceKind
}

type Account struct {
	ID     NationID
	pools  map[string]*Pool
	units  map[ReservationID]unitHold
	closed map[ReservationID]ReservationState
	seq    *Sequence
	log    *slog.Logger
}

func NewAccount(id NationID, log *slog.Logger) *Account {
	if log == nil {
		log = slog.Default()
	}
	return &Account{
		ID:     id,
		pools:  make(map[string]*Pool),
		units:  make(map[ReservationID]unitHold),
		closed: make(map[ReservationID]ReservationState),
		seq:    NewSequence(),
		log:    log,
	}
}

// Pool returns the pool for a resource, creating an empty one on first use.
func (a *Account) Pool(resource ResourceKind) *Pool {
	id := resource.ResourceID()
	if p, ok := a.pools[id]; ok {
		return p
	}
	p := NewPool(a.ID, resource, a.seq, a.log)
	a.pools[id] = p
	return p
}

// LookupPool returns an existing pool by resource ID.
func (a *Account) LookupPool(resourceID string) (*Pool, bool) {
	p, ok := a.pools[resourceID]
	return p, ok
}

// Pools returns every pool ordered by resource ID.
func (a *Account) Pools() []*Pool {
	out := make([]*Pool, 0, len(a.pools))
	for _, p := range a.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].resource.ResourceID() < out[j].resource.ResourceID() })
	return out
}

// Available is a shorthand for Pool(resource).Available().
func (a *Account) Available(resource ResourceKind) Amount {
	return a.Pool(resource).Available()
}

// Deposit adds stock to a pool.
func (a *Account) Deposit(resource ResourceKind, amount Amount) error {
	return a.Pool(resource).Deposit(amount)
}

// Sync sets a pool's on_hand from the authoritative stockpile.
func (a *Account) Sync(resource ResourceKind, onHand Amount) error {
	return a.Pool(resource).Sync(onHand)
}

// =============================================================================
// UNIT HOLDS
// =============================================================================

// ReserveUnit reserves every line of cost under a single new ID.
func (a *Account) ReserveUnit(owner CategoryID, cost Cost, turn Turn) (ReservationID, error) {
	lines := cost.Normalize()
	if len(lines) == 0 {
		return 0, &InvalidRequestError{Field: "cost", Value: string(owner), Reason: "unit has no inputs"}
	}

	id := a.seq.Peek()
	done := make([]*Pool, 0, len(lines))
	for _, line := range lines {
		p := a.Pool(line.Resource)
		if err := p.reserveAs(id, owner, line.Amount, turn); err != nil {
			for _, rollback := range done {
				rollback.unreserve(id)
			}
			return 0, err
		}
		done = append(done, p)
	}
	a.seq.Advance()

	resources := make([]ResourceKind, len(lines))
	for i, line := range lines {
		resources[i] = line.Resource
	}
	a.units[id] = unitHold{owner: owner, turn: turn, resources: resources}
	return id, nil
}

// ReserveUnits reserves up to n units, stopping at the first shortage.
func (a *Account) ReserveUnits(owner CategoryID, cost Cost, n int64, turn Turn) ([]ReservationID, error) {
	ids := make([]ReservationID, 0, min(n, 64))
	for i := int64(0); i < n; i++ {
		id, err := a.ReserveUnit(owner, cost, turn)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReleaseUnit releases every pool part of a unit. Idempotent.
func (a *Account) ReleaseUnit(id ReservationID) error {
	hold, ok := a.units[id]
	if !ok {
		if _, seen := a.closed[id]; seen {
			return nil
		}
		a.log.Warn("release of unknown unit", "nation", string(a.ID), "reservation", id.String())
		return fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}
	var errs []error
	for _, res := range hold.resources {
		if err := a.Pool(res).Release(id); err != nil {
			errs = append(errs, err)
		}
	}
	delete(a.units, id)
	a.closed[id] = ReservationReleased
	return errors.Join(errs...)
}

// CommitUnit commits every pool part of a unit and returns what was consumed.
// Commit errors are collected, never fatal: what could be consumed is.
func (a *Account) CommitUnit(id ReservationID) (Cost, error) {
	hold, ok := a.units[id]
	if !ok {
		if a.closed[id] == ReservationCommitted {
			return nil, &InvariantViolationError{
				NationID: a.ID, ReservationID: id,
				Code: "double_commit", Detail: "unit already committed",
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}
	var (
		consumed Cost
		errs     []error
	)
	for _, res := range hold.resources {
		amt, err := a.Pool(res).Commit(id)
		if err != nil {
			errs = append(errs, err)
		}
		if amt.IsPositive() {
			consumed = append(consumed, CostLine{Resource: res, Amount: amt})
		}
	}
	delete(a.units, id)
	a.closed[id] = ReservationCommitted
	return consumed, errors.Join(errs...)
}

// UnitOwner reports which category holds a live unit.
func (a *Account) UnitOwner(id ReservationID) (CategoryID, bool) {
	h, ok := a.units[id]
	return h.owner, ok
}

// LiveUnits returns the IDs of all live units in ascending order.
func (a *Account) LiveUnits() []ReservationID {
	ids := make([]ReservationID, 0, len(a.units))
	for id := range a.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasLiveReservations reports whether any pool has anything reserved.
func (a *Account) HasLiveReservations() bool {
	for _, p := range a.pools {
		if p.Live() > 0 || p.reserved.IsPositive() {
			return true
		}
	}
	return false
}

// =============================================================================
// TURN BOUNDARY
// =============================================================================

// ReleaseStray releases every live unit and returns the ones it found. Only
// called when something should already have been committed or released.
func (a *Account) ReleaseStray() []ReservationID {
	stray := a.LiveUnits()
	for _, id := range stray {
		_ = a.ReleaseUnit(id)
	}
	for _, p := range a.pools {
		for _, r := range p.Reservations() {
			_ = p.Release(r.ID)
			stray = append(stray, r.ID)
		}
	}
	return stray
}

// BeginTurn forgets last turn's released and committed IDs.
func (a *Account) BeginTurn() {
	a.closed = make(map[ReservationID]ReservationState)
	for _, p := range a.pools {
		p.Prune()
	}
}

// CheckInvariants runs CheckInvariant on every pool.
func (a *Account) CheckInvariants() []error {
	var errs []error
	for _, p := range a.Pools() {
		if err := p.CheckInvariant(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
