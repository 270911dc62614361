package allocation

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// Unlimited marks a cap that places no limit.
const Unlimited int64 = math.MaxInt64

// MaxRequest is the largest unit count a category accepts.
const MaxRequest = 1_000_000_000

// =============================================================================
// PARAMS - What one unit of a category costs and what bounds it
// =============================================================================

type Params struct {
	// Cost is the per-unit goods and labor input.
	Cost generic.Cost
	// CashPerUnit is charged against the treasury. Buy orders use the
	// oracle price instead when one is quoted.
	CashPerUnit decimal.Decimal
	// MaxUnits is an optional static ceiling for any kind.
	MaxUnits *int64

	// Training
	Skill          economy.WorkerSkill
	LimitToWorkers bool

	// Production
	Building     string
	BuildingKind economy.BuildingKind
	Output       economy.Good
	Variant      string

	// TradeOrder
	Good      economy.Good
	Direction TradeDirection
}

// =============================================================================
// CATEGORY
// =============================================================================

// Category is one competing demand on a nation's stock. Not safe for
// concurrent use; the owning Nation serializes access.
type Category struct {
	ID     generic.CategoryID
	Kind   Kind
	Params Params

	requested int64
	allocated int64
	holds     []generic.ReservationID
	finalized bool
	caps      Caps
}

func (c *Category) Requested() int64 { return c.requested }
func (c *Category) Allocated() int64 { return c.allocated }
func (c *Category) Finalized() bool  { return c.finalized }

// Holds returns the unit IDs backing allocated, oldest first.
func (c *Category) Holds() []generic.ReservationID {
	out := make([]generic.ReservationID, len(c.holds))
	copy(out, c.holds)
	return out
}

// NewRecruitment builds the recruitment category.
func NewRecruitment() *Category {
	return &Category{
		ID:     "recruitment",
		Kind:   Recruitment,
		Params: Params{Cost: economy.RecruitmentCost()},
	}
}

// NewTraining builds the training category for one source skill tier.
func NewTraining(skill economy.WorkerSkill) (*Category, error) {
	if _, ok := skill.Next(); !ok {
		return nil, &generic.InvalidRequestError{Field: "skill", Value: string(skill), Reason: "top tier cannot be trained"}
	}
	return &Category{
		ID:   generic.CategoryID("training/" + string(skill)),
		Kind: Training,
		Params: Params{
			Cost:        economy.TrainingCost(),
			CashPerUnit: economy.TrainingCash(),
			Skill:       skill,
		},
	}, nil
}

// NewProduction builds a production category for one output of one building.
func NewProduction(building string, kind economy.BuildingKind, output economy.Good, variant string) (*Category, error) {
	recipe, err := economy.RecipeFor(kind, output, variant)
	if err != nil {
		return nil, err
	}
	id := "production/" + building + "/" + string(output)
	if variant != "" {
		id += "/" + variant
	}
	return &Category{
		ID:   generic.CategoryID(id),
		Kind: Production,
		Params: Params{
			Cost:         recipe.Cost(),
			Building:     building,
			BuildingKind: kind,
			Output:       output,
			Variant:      variant,
		},
	}, nil
}

// NewTradeOrder builds a trade category. Sell orders reserve the good itself;
// buy orders reserve cash at the quoted price, falling back to pricePerUnit.
func NewTradeOrder(good economy.Good, dir TradeDirection, pricePerUnit decimal.Decimal) *Category {
	c := &Category{
		ID:     generic.CategoryID("trade/" + string(dir) + "/" + string(good)),
		Kind:   TradeOrder,
		Params: Params{Good: good, Direction: dir},
	}
	if dir == Sell {
		c.Params.Cost = generic.Cost{{Resource: good, Amount: generic.NewAmountFromInt(1, generic.UnitGoods)}}
	} else {
		c.Params.CashPerUnit = pricePerUnit
	}
	return c
}

// WithMaxUnits sets a static ceiling and returns the category.
func (c *Category) WithMaxUnits(n int64) *Category {
	c.Params.MaxUnits = &n
	return c
}

// =============================================================================
// STATUS - Read-only projection for the UI
// =============================================================================

// Caps breaks down why allocated is what it is.
type Caps struct {
	Hard     int64
	Resource int64
	Treasury int64
	// Binding names the tightest cap when it is below requested:
	// "hard", "resource:<id>", "treasury", or "" when fully satisfied.
	Binding string
}

// Limit is the smallest of the three caps.
func (c Caps) Limit() int64 {
	return min(c.Hard, c.Resource, c.Treasury)
}

type Status struct {
	NationID   generic.NationID
	CategoryID generic.CategoryID
	Kind       Kind
	Params     Params
	Requested  int64
	Allocated  int64
	Finalized  bool
	Caps       Caps
	Holds      []generic.ReservationID
}

// Partial reports whether the category got less than it asked for.
func (s Status) Partial() bool { return s.Allocated < s.Requested }

func (c *Category) status(nation generic.NationID) Status {
	return Status{
		NationID:   nation,
		CategoryID: c.ID,
		Kind:       c.Kind,
		Params:     c.Params,
		Requested:  c.requested,
		Allocated:  c.allocated,
		Finalized:  c.finalized,
		Caps:       c.caps,
		Holds:      c.Holds(),
	}
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// ValidateRequested converts a raw slider value to a unit count. Negative,
// NaN, infinite and absurdly large values are rejected; fractions are floored.
func ValidateRequested(amount float64) (int64, error) {
	raw := strconv.FormatFloat(amount, 'g', -1, 64)
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		return 0, &generic.InvalidRequestError{Field: "requested", Value: raw, Reason: "must be finite"}
	case amount < 0:
		return 0, &generic.InvalidRequestError{Field: "requested", Value: raw, Reason: "must not be negative"}
	case amount > MaxRequest:
		return 0, &generic.InvalidRequestError{Field: "requested", Value: raw, Reason: fmt.Sprintf("exceeds maximum of %d", MaxRequest)}
	}
	return int64(math.Floor(amount)), nil
}
