package turn

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// SETTLEMENT - Stock that finalized categories give back
// =============================================================================
//
// Production and trade return stock to the nation that committed them:
//
//   production:  +Quantity of the recipe output
//   sell order:  +Quantity × oracle price in cash
//   buy order:   +Quantity of the good
//
// Recruitment and training feed systems outside the engine and settle
// nothing here. Settlement deposits are keyed by nation, turn and category,
// so a redelivered handoff is credited once.

// WithSettlement credits production output and trade proceeds when handoffs
// are delivered. Prices value sell orders; a good without a quote sells for
// nothing and is logged.
func WithSettlement(prices allocation.PriceOracle) Option {
	return func(c *Controller) {
		c.settle = true
		c.prices = prices
	}
}

func (c *Controller) settleHandoff(ctx context.Context, h allocation.Handoff) error {
	if h.Quantity <= 0 {
		return nil
	}
	resource, amount, ok := c.proceeds(h)
	if !ok {
		return nil
	}
	key := fmt.Sprintf("settle/%s/%d/%s", h.NationID, h.Turn, h.CategoryID)
	if err := c.Deposit(ctx, h.NationID, resource, amount, key); err != nil {
		return fmt.Errorf("settle %s/%s: %w", h.NationID, h.CategoryID, err)
	}
	c.log.Debug("handoff settled",
		"nation", string(h.NationID),
		"category", string(h.CategoryID),
		"resource", resource.ResourceID(),
		"amount", amount.Value.String(),
	)
	return nil
}

func (c *Controller) proceeds(h allocation.Handoff) (generic.ResourceKind, generic.Amount, bool) {
	qty := decimal.NewFromInt(h.Quantity)
	switch h.Kind {
	case allocation.Production:
		return h.Output, generic.Amount{Value: qty, Unit: h.Output.ResourceUnit()}, true
	case allocation.TradeOrder:
		if h.Direction == allocation.Buy {
			return h.Good, generic.Amount{Value: qty, Unit: h.Good.ResourceUnit()}, true
		}
		if c.prices == nil {
			return nil, generic.Amount{}, false
		}
		price, ok := c.prices.Price(h.Good)
		if !ok || !price.IsPositive() {
			c.log.Warn("sell order has no price", "nation", string(h.NationID), "good", string(h.Good))
			return nil, generic.Amount{}, false
		}
		return economy.Cash, generic.Amount{Value: qty.Mul(price), Unit: generic.UnitCash}, true
	}
	return nil, generic.Amount{}, false
}
