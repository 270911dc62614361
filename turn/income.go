package turn

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/generic"
)

// IncomeSource names the stock each nation receives at the start of a
// PlayerTurn.
type IncomeSource interface {
	Income(nation generic.NationID, turn generic.Turn) generic.Cost
}

// IncomeFunc adapts a plain function to IncomeSource.
type IncomeFunc func(nation generic.NationID, turn generic.Turn) generic.Cost

func (f IncomeFunc) Income(nation generic.NationID, turn generic.Turn) generic.Cost {
	return f(nation, turn)
}

// WithIncome credits per-turn income inside every PlayerTurn opening, after
// stock sync and before carried-over requests are re-reserved. Deposits are
// keyed by nation, turn and resource.
func WithIncome(src IncomeSource) Option { return func(c *Controller) { c.income = src } }

// creditIncome deposits n's income for the current turn. Caller holds c.mu.
func (c *Controller) creditIncome(ctx context.Context, n *allocation.Nation) error {
	if c.income == nil {
		return nil
	}
	var errs []error
	for _, line := range c.income.Income(n.ID, c.turn) {
		if !line.Amount.IsPositive() {
			continue
		}
		key := fmt.Sprintf("income/%s/%d/%s", n.ID, c.turn, line.Resource.ResourceID())
		if err := c.deposit(ctx, n, c.turn, line.Resource, line.Amount, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", line.Resource.ResourceID(), err))
		}
	}
	return errors.Join(errs...)
}
