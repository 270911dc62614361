package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// SAVE POINT - Stock at the start of a PlayerTurn
// =============================================================================

// SavePoint captures a nation's stock at the start of a PlayerTurn, after
// every category was reset. Live reservations are never persisted, so a save
// point is refused while anything is reserved.
type SavePoint struct {
	ID        string
	NationID  NationID
	Turn      Turn
	OnHand    map[string]Amount
	Requested map[CategoryID]int64
	TakenAt   time.Time
}

// SavePoint snapshots the account's on-hand stock. Requested is filled in by
// the caller, which owns the categories.
func (a *Account) SavePoint(turn Turn, at time.Time) (SavePoint, error) {
	for _, p := range a.Pools() {
		if p.Live() > 0 || p.Reserved().IsPositive() {
			return SavePoint{}, fmt.Errorf("save point for %s turn %d: %s reserved %s: %w",
				a.ID, turn, p.Resource().ResourceID(), p.Reserved().Value, ErrLiveReservations)
		}
	}
	onHand := make(map[string]Amount, len(a.pools))
	for id, p := range a.pools {
		onHand[id] = p.OnHand()
	}
	return SavePoint{
		ID:        fmt.Sprintf("%s-turn-%d", a.ID, turn),
		NationID:  a.ID,
		Turn:      turn,
		OnHand:    onHand,
		Requested: make(map[CategoryID]int64),
		TakenAt:   at,
	}, nil
}

// Restore loads on-hand figures from a save point into an account with no
// live reservations.
func (a *Account) Restore(sp SavePoint) error {
	if a.HasLiveReservations() {
		return fmt.Errorf("restore %s: %w", a.ID, ErrLiveReservations)
	}
	for id, amt := range sp.OnHand {
		if err := a.Sync(GetOrCreateResource(id), amt); err != nil {
			return err
		}
	}
	return nil
}
