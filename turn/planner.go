package turn

import (
	"context"
	"errors"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/generic"
)

// Planner adjusts an AI nation's requests during EnemyTurn. It goes through
// the same SetRequested path a player does; the engine finalizes afterwards.
type Planner interface {
	Plan(ctx context.Context, turn generic.Turn, n *allocation.Nation) error
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, turn generic.Turn, n *allocation.Nation) error

func (f PlannerFunc) Plan(ctx context.Context, turn generic.Turn, n *allocation.Nation) error {
	return f(ctx, turn, n)
}

// FixedPlan requests the same amounts every turn. Categories the nation does
// not have are skipped.
type FixedPlan map[generic.CategoryID]float64

func (p FixedPlan) Plan(_ context.Context, _ generic.Turn, n *allocation.Nation) error {
	var errs []error
	for _, st := range n.Statuses() {
		amount, ok := p[st.CategoryID]
		if !ok {
			continue
		}
		if _, err := n.SetRequested(st.CategoryID, amount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
