package generic_test

import (
	"errors"
	"testing"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	food  = generic.StringResource{ID: "food", Domain: "test", Unit: generic.UnitGoods}
	cloth = generic.StringResource{ID: "cloth", Domain: "test", Unit: generic.UnitGoods}
	wood  = generic.StringResource{ID: "wood", Domain: "test", Unit: generic.UnitGoods}
)

func units(n int64) generic.Amount {
	return generic.NewAmountFromInt(n, generic.UnitGoods)
}

func poolWith(onHand int64) *generic.Pool {
	p := generic.NewPool("player", food, nil, nil)
	if err := p.Deposit(units(onHand)); err != nil {
		panic(err)
	}
	return p
}

func assertPool(t *testing.T, p *generic.Pool, onHand, reserved, available int64) {
	t.Helper()
	if !p.OnHand().Value.Equal(units(onHand).Value) {
		t.Errorf("on_hand = %v, want %d", p.OnHand().Value, onHand)
	}
	if !p.Reserved().Value.Equal(units(reserved).Value) {
		t.Errorf("reserved = %v, want %d", p.Reserved().Value, reserved)
	}
	if !p.Available().Value.Equal(units(available).Value) {
		t.Errorf("available = %v, want %d", p.Available().Value, available)
	}
	if err := p.CheckInvariant(); err != nil {
		t.Errorf("invariant: %v", err)
	}
}

// =============================================================================
// RESERVE
// =============================================================================

func TestPool_ReserveReducesAvailable(t *testing.T) {
	// GIVEN: 5 units on hand
	p := poolWith(5)

	// WHEN: reserving 3
	id, err := p.Reserve("recruitment", units(3), 1)

	// THEN: available drops, on_hand does not
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero reservation id")
	}
	assertPool(t, p, 5, 3, 2)

	r, ok := p.Reservation(id)
	if !ok || r.Owner != "recruitment" || r.Turn != 1 {
		t.Errorf("reservation record = %+v, %v", r, ok)
	}
}

func TestPool_ReserveBeyondAvailableFails(t *testing.T) {
	// GIVEN: 5 on hand, 3 already reserved
	p := poolWith(5)
	if _, err := p.Reserve("a", units(3), 1); err != nil {
		t.Fatal(err)
	}

	// WHEN: another category asks for 3
	_, err := p.Reserve("b", units(3), 1)

	// THEN: insufficient resource with the shortfall, pool unchanged
	if !errors.Is(err, generic.ErrInsufficientResource) {
		t.Fatalf("expected ErrInsufficientResource, got %v", err)
	}
	var short *generic.InsufficientResourceError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientResourceError, got %T", err)
	}
	if !short.Shortfall.Value.Equal(units(1).Value) {
		t.Errorf("shortfall = %v, want 1", short.Shortfall.Value)
	}
	if !generic.IsRecoverable(err) {
		t.Error("insufficient resource should be recoverable")
	}
	assertPool(t, p, 5, 3, 2)
}

func TestPool_ReserveRejectsNonPositive(t *testing.T) {
	p := poolWith(5)

	_, err := p.Reserve("a", units(0), 1)

	if !errors.Is(err, generic.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	assertPool(t, p, 5, 0, 5)
}

func TestPool_ReserveManyStopsAtShortage(t *testing.T) {
	// GIVEN: 5 on hand
	p := poolWith(5)

	// WHEN: asking for 8 single units
	ids, err := p.ReserveMany("trade", 8, units(1), 1)

	// THEN: 5 distinct ids and a shortage error
	if !errors.Is(err, generic.ErrInsufficientResource) {
		t.Fatalf("expected shortage, got %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("got %d ids, want 5", len(ids))
	}
	seen := map[generic.ReservationID]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %v", id)
		}
		seen[id] = true
	}
	assertPool(t, p, 5, 5, 0)
}

// =============================================================================
// RELEASE
// =============================================================================

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	// GIVEN: a live reservation of 2
	p := poolWith(5)
	id, _ := p.Reserve("a", units(2), 1)

	// WHEN: releasing twice
	if err := p.Release(id); err != nil {
		t.Fatalf("first release: %v", err)
	}
	err := p.Release(id)

	// THEN: the second release is a silent no-op
	if err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
	if p.State(id) != generic.ReservationReleased {
		t.Errorf("state = %q, want released", p.State(id))
	}
	assertPool(t, p, 5, 0, 5)
}

func TestPool_ReleaseUnknownIsDistinct(t *testing.T) {
	p := poolWith(5)

	err := p.Release(generic.ReservationID(999))

	if !errors.Is(err, generic.ErrUnknownReservation) {
		t.Fatalf("expected ErrUnknownReservation, got %v", err)
	}
	assertPool(t, p, 5, 0, 5)
}

func TestPool_ReleaseAfterPruneIsUnknown(t *testing.T) {
	// GIVEN: an id released last turn
	p := poolWith(5)
	id, _ := p.Reserve("a", units(1), 1)
	_ = p.Release(id)

	// WHEN: the turn boundary prunes tombstones
	p.Prune()

	// THEN: the old id is now unknown
	if err := p.Release(id); !errors.Is(err, generic.ErrUnknownReservation) {
		t.Fatalf("expected ErrUnknownReservation after prune, got %v", err)
	}
}

// =============================================================================
// COMMIT
// =============================================================================

func TestPool_CommitConsumesStock(t *testing.T) {
	// GIVEN: 5 on hand, 3 reserved
	p := poolWith(5)
	id, _ := p.Reserve("recruitment", units(3), 1)

	// WHEN: committing
	consumed, err := p.Commit(id)

	// THEN: on_hand and reserved both drop by 3
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !consumed.Value.Equal(units(3).Value) {
		t.Errorf("consumed = %v, want 3", consumed.Value)
	}
	assertPool(t, p, 2, 0, 2)
}

func TestPool_DoubleCommitIsInvariantViolation(t *testing.T) {
	p := poolWith(5)
	id, _ := p.Reserve("a", units(3), 1)
	if _, err := p.Commit(id); err != nil {
		t.Fatal(err)
	}

	consumed, err := p.Commit(id)

	if !errors.Is(err, generic.ErrLedgerInvariant) {
		t.Fatalf("expected ErrLedgerInvariant, got %v", err)
	}
	if !consumed.IsZero() {
		t.Errorf("double commit consumed %v", consumed.Value)
	}
	assertPool(t, p, 2, 0, 2)
}

func TestPool_CommitAfterReleaseIsInvariantViolation(t *testing.T) {
	p := poolWith(5)
	id, _ := p.Reserve("a", units(3), 1)
	_ = p.Release(id)

	_, err := p.Commit(id)

	var inv *generic.InvariantViolationError
	if !errors.As(err, &inv) || inv.Code != "commit_after_release" {
		t.Fatalf("expected commit_after_release, got %v", err)
	}
	assertPool(t, p, 5, 0, 5)
}

func TestPool_CommitUnknown(t *testing.T) {
	p := poolWith(5)

	_, err := p.Commit(42)

	if !errors.Is(err, generic.ErrUnknownReservation) {
		t.Fatalf("expected ErrUnknownReservation, got %v", err)
	}
}

// =============================================================================
// SYNC / DEPOSIT
// =============================================================================

func TestPool_SyncRefusedWithLiveReservations(t *testing.T) {
	p := poolWith(5)
	id, _ := p.Reserve("a", units(1), 1)

	err := p.Sync(units(10))

	if !errors.Is(err, generic.ErrLiveReservations) {
		t.Fatalf("expected ErrLiveReservations, got %v", err)
	}

	_ = p.Release(id)
	if err := p.Sync(units(10)); err != nil {
		t.Fatalf("sync after release: %v", err)
	}
	assertPool(t, p, 10, 0, 10)
}

func TestPool_DepositRejectsNegative(t *testing.T) {
	p := poolWith(5)

	err := p.Deposit(units(-1))

	if !errors.Is(err, generic.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	assertPool(t, p, 5, 0, 5)
}

func TestPool_ReservedNeverExceedsOnHand(t *testing.T) {
	// GIVEN: a pool exercised with a mix of operations
	p := poolWith(7)
	var live []generic.ReservationID

	for i := 0; i < 20; i++ {
		switch i % 4 {
		case 0, 1:
			if id, err := p.Reserve("a", units(2), 1); err == nil {
				live = append(live, id)
			}
		case 2:
			if len(live) > 0 {
				_ = p.Release(live[len(live)-1])
				live = live[:len(live)-1]
			}
		case 3:
			if len(live) > 0 {
				_, _ = p.Commit(live[0])
				live = live[1:]
			}
		}

		// THEN: the invariant holds after every step
		if p.Reserved().GreaterThan(p.OnHand()) {
			t.Fatalf("step %d: reserved %v > on_hand %v", i, p.Reserved().Value, p.OnHand().Value)
		}
		if p.Available().IsNegative() {
			t.Fatalf("step %d: negative available", i)
		}
	}
}
