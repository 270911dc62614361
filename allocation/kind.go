/*
Package allocation implements allocation categories: the per-nation demands
(recruitment, training, production, trade orders) that compete for a
nation's stockpile during a turn.

PURPOSE:
  A category turns a requested unit count into reservations. It never
  consumes anything itself; consumption happens at finalize, when every
  reserved unit is committed and a single handoff record goes to the
  effect systems.

KEY CONCEPTS:
  - Kind: closed set of category variants with a per-variant hard cap
  - Category: requested/allocated counters plus a LIFO stack of unit IDs
  - Nation: the single-writer owner of an account and its categories
  - Handoff: what finalize tells the downstream effect systems

ALLOCATION RULE:
  allocated = min(requested, hard_cap, resource_cap, treasury_cap)

  resource_cap: min over inputs of floor((available + own_held) / per_unit)
  treasury_cap: floor((available_cash + own_held_cash) / cash_per_unit)

  Units are reserved one at a time on increase and released last-in
  first-out on decrease. Reservations made earlier by other categories keep
  their priority; a category only draws on what is still available.

SEE ALSO:
  - generic/account.go: Multi-pool unit holds
  - turn/controller.go: Drives finalize and reset at phase boundaries
*/
package allocation

import (
	"fmt"
	"strings"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// KIND - Closed set of category variants
// =============================================================================

type Kind int

const (
	Recruitment Kind = iota
	Training
	Production
	TradeOrder
)

// FinalizeOrder is the fixed order categories are committed in at the end of
// a turn. Recruitment sees the stockpile before trade orders do.
var FinalizeOrder = []Kind{Recruitment, Training, Production, TradeOrder}

func (k Kind) String() string {
	switch k {
	case Recruitment:
		return "recruitment"
	case Training:
		return "training"
	case Production:
		return "production"
	case TradeOrder:
		return "trade_order"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Rank is the position of the kind in FinalizeOrder.
func (k Kind) Rank() int {
	for i, o := range FinalizeOrder {
		if o == k {
			return i
		}
	}
	return len(FinalizeOrder)
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recruitment":
		return Recruitment, nil
	case "training":
		return Training, nil
	case "production":
		return Production, nil
	case "trade_order", "trade":
		return TradeOrder, nil
	}
	return 0, &generic.InvalidRequestError{Field: "kind", Value: s, Reason: "unknown category kind"}
}

// TradeDirection says which side of the market a trade order is on.
type TradeDirection string

const (
	Sell TradeDirection = "sell"
	Buy  TradeDirection = "buy"
)

func ParseDirection(s string) (TradeDirection, error) {
	switch TradeDirection(strings.ToLower(s)) {
	case Sell:
		return Sell, nil
	case Buy:
		return Buy, nil
	}
	return "", &generic.InvalidRequestError{Field: "direction", Value: s, Reason: "must be sell or buy"}
}
