package allocation_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const player generic.NationID = "player"

func goods(n int64) generic.Amount { return generic.NewAmountFromInt(n, generic.UnitGoods) }

// foodRecruitment costs one can of food per recruit, which keeps the
// arithmetic of the walkthrough scenarios readable.
func foodRecruitment() *allocation.Category {
	return &allocation.Category{
		ID:   "recruitment",
		Kind: allocation.Recruitment,
		Params: allocation.Params{
			Cost: generic.Cost{{Resource: economy.CannedFood, Amount: goods(1)}},
		},
	}
}

func newNation(t *testing.T, caps allocation.NationCapacity, cats ...*allocation.Category) (*allocation.Nation, *allocation.StaticCapacities) {
	t.Helper()
	sc := allocation.NewStaticCapacities()
	sc.Set(player, caps)
	n := allocation.NewNation(player, allocation.WithCapacities(sc))
	for _, c := range cats {
		require.NoError(t, n.AddCategory(c))
	}
	return n, sc
}

func deposit(t *testing.T, n *allocation.Nation, r generic.ResourceKind, qty int64) {
	t.Helper()
	require.NoError(t, n.Deposit(r, generic.NewAmountFromInt(qty, r.ResourceUnit())))
}

func assertPool(t *testing.T, n *allocation.Nation, r generic.ResourceKind, onHand, reserved, available int64) {
	t.Helper()
	v := n.Pool(r)
	assert.True(t, v.OnHand.Value.Equal(decimal.NewFromInt(onHand)), "on_hand %s = %s, want %d", r.ResourceID(), v.OnHand.Value, onHand)
	assert.True(t, v.Reserved.Value.Equal(decimal.NewFromInt(reserved)), "reserved %s = %s, want %d", r.ResourceID(), v.Reserved.Value, reserved)
	assert.True(t, v.Available.Value.Equal(decimal.NewFromInt(available)), "available %s = %s, want %d", r.ResourceID(), v.Available.Value, available)
}

// =============================================================================
// WALKTHROUGH
// =============================================================================

func TestNation_ShortageCapsAllocation(t *testing.T) {
	// GIVEN: 5 canned food and a recruitment pool large enough for 10
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)

	// WHEN: requesting 10 recruits
	st, err := n.SetRequested("recruitment", 10)

	// THEN: only 5 are allocated and the pool is drained
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.Requested)
	assert.Equal(t, int64(5), st.Allocated)
	assert.Equal(t, "resource:canned_food", st.Caps.Binding)
	assert.True(t, st.Partial())
	assertPool(t, n, economy.CannedFood, 5, 5, 0)
}

func TestNation_DecreaseReleasesMostRecentFirst(t *testing.T) {
	// GIVEN: 5 recruits allocated out of 5 food
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	before, err := n.SetRequested("recruitment", 10)
	require.NoError(t, err)
	require.Len(t, before.Holds, 5)

	// WHEN: the player lowers the request to 3
	after, err := n.SetRequested("recruitment", 3)

	// THEN: the two newest holds are gone, the oldest three survive
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.Allocated)
	assert.Equal(t, before.Holds[:3], after.Holds)
	assertPool(t, n, economy.CannedFood, 5, 3, 2)
	assert.Empty(t, n.CheckInvariants())
}

func TestNation_FinalizeOrderProtectsEarlierKinds(t *testing.T) {
	// GIVEN: recruitment and a sell order both drawing canned food
	sell := allocation.NewTradeOrder(economy.CannedFood, allocation.Sell, decimal.Zero)
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, sell, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)

	_, err := n.SetRequested("recruitment", 3)
	require.NoError(t, err)
	sellStatus, err := n.SetRequested(sell.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sellStatus.Allocated)

	// WHEN: finalizing
	res := n.Finalize()

	// THEN: recruitment commits first and keeps its 3
	require.Empty(t, res.Violations)
	require.Len(t, res.Handoffs, 2)
	assert.Equal(t, allocation.Recruitment, res.Handoffs[0].Kind)
	assert.Equal(t, int64(3), res.Handoffs[0].Quantity)
	assert.Equal(t, allocation.TradeOrder, res.Handoffs[1].Kind)
	assert.Equal(t, int64(2), res.Handoffs[1].Quantity)
	assertPool(t, n, economy.CannedFood, 0, 0, 0)
}

func TestNation_FinalizeJournalsEveryConsumedInput(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, err := n.SetRequested("recruitment", 3)
	require.NoError(t, err)

	res := n.Finalize()

	require.Len(t, res.Journal, 3)
	keys := map[string]bool{}
	for _, tx := range res.Journal {
		assert.Equal(t, generic.TxConsumption, tx.Type)
		assert.True(t, tx.Delta.Value.Equal(decimal.NewFromInt(-1)))
		keys[tx.IdempotencyKey] = true
	}
	assert.Len(t, keys, 3, "idempotency keys must be unique per unit")
	assertPool(t, n, economy.CannedFood, 2, 0, 2)
}

func TestNation_ClockStampsHandoffsJournalAndSavePoint(t *testing.T) {
	at := time.Date(1936, time.March, 7, 12, 0, 0, 0, time.UTC)
	sc := allocation.NewStaticCapacities()
	sc.Set(player, allocation.NationCapacity{Provinces: 40})
	n := allocation.NewNation(player, allocation.WithCapacities(sc), allocation.WithClock(func() time.Time { return at }))
	require.NoError(t, n.AddCategory(foodRecruitment()))
	deposit(t, n, economy.CannedFood, 5)
	_, err := n.SetRequested("recruitment", 2)
	require.NoError(t, err)

	res := n.Finalize()

	require.Len(t, res.Handoffs, 1)
	assert.Equal(t, at, res.Handoffs[0].CreatedAt)
	require.Len(t, res.Journal, 2)
	for _, tx := range res.Journal {
		assert.Equal(t, at, tx.CreatedAt)
	}
	n.Reset(false)
	sp, err := n.SavePoint()
	require.NoError(t, err)
	assert.Equal(t, at, sp.TakenAt)
}

func TestNation_FinalizeTwiceIsNoop(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 3)

	first := n.Finalize()
	second := n.Finalize()

	assert.Len(t, first.Handoffs, 1)
	assert.Empty(t, second.Handoffs)
	assert.Empty(t, second.Journal)
	assertPool(t, n, economy.CannedFood, 2, 0, 2)
}

func TestNation_SetRequestedAfterFinalizeIsWrongPhase(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_ = n.Finalize()

	_, err := n.SetRequested("recruitment", 1)

	assert.ErrorIs(t, err, generic.ErrWrongPhase)
}

func TestNation_ResetIsIdempotent(t *testing.T) {
	// GIVEN: a finalized turn
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 3)
	_ = n.Finalize()

	// WHEN: resetting twice
	errs1 := n.Reset(false)
	errs2 := n.Reset(false)

	// THEN: everything is zeroed and nothing is reported
	assert.Empty(t, errs1)
	assert.Empty(t, errs2)
	st, err := n.Status("recruitment")
	require.NoError(t, err)
	assert.Zero(t, st.Requested)
	assert.Zero(t, st.Allocated)
	assert.False(t, st.Finalized)
	assert.False(t, n.HasLiveReservations())
}

func TestNation_ResetReleasesStrayHolds(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 4)

	errs := n.Reset(true)

	require.Len(t, errs, 1)
	var inv *generic.InvariantViolationError
	require.ErrorAs(t, errs[0], &inv)
	assert.Equal(t, "stray_at_reset", inv.Code)
	assertPool(t, n, economy.CannedFood, 5, 0, 5)

	st, _ := n.Status("recruitment")
	assert.Equal(t, int64(4), st.Requested, "carry-over keeps requested")
}

// =============================================================================
// CAPS
// =============================================================================

func TestNation_RecruitmentCapFromProvinces(t *testing.T) {
	tests := []struct {
		name      string
		provinces int64
		upgraded  bool
		want      int64
	}{
		{"base rate", 12, false, 3},
		{"upgraded rate", 12, true, 4},
		{"too few provinces", 3, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newNation(t, allocation.NationCapacity{Provinces: tt.provinces, RecruitmentUpgraded: tt.upgraded}, allocation.NewRecruitment())
			for _, g := range []economy.Good{economy.CannedFood, economy.Clothing, economy.Furniture} {
				deposit(t, n, g, 100)
			}

			st, err := n.SetRequested("recruitment", 50)

			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Allocated)
			assert.Equal(t, tt.want, st.Caps.Hard)
			assert.Equal(t, "hard", st.Caps.Binding)
		})
	}
}

func TestNation_RecruitmentNeedsEveryInput(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, allocation.NewRecruitment())
	deposit(t, n, economy.CannedFood, 10)
	deposit(t, n, economy.Clothing, 2)
	deposit(t, n, economy.Furniture, 10)

	st, err := n.SetRequested("recruitment", 5)

	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Allocated)
	assert.Equal(t, "resource:clothing", st.Caps.Binding)
	assertPool(t, n, economy.CannedFood, 10, 2, 8)
	assertPool(t, n, economy.Furniture, 10, 2, 8)
}

func TestNation_TrainingLimitedByTreasury(t *testing.T) {
	// GIVEN: plenty of paper but cash for only 2 trainees
	training, err := allocation.NewTraining(economy.Untrained)
	require.NoError(t, err)
	n, _ := newNation(t, allocation.NationCapacity{}, training)
	deposit(t, n, economy.Paper, 10)
	deposit(t, n, economy.Cash, 250)

	// WHEN: asking for 5
	st, err := n.SetRequested(training.ID, 5)

	// THEN: the treasury binds
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Allocated)
	assert.Equal(t, int64(2), st.Caps.Treasury)
	assert.Equal(t, "treasury", st.Caps.Binding)
	assertPool(t, n, economy.Cash, 250, 200, 50)
	assertPool(t, n, economy.Paper, 10, 2, 8)
}

func TestNation_TrainingLimitedToWorkers(t *testing.T) {
	training, err := allocation.NewTraining(economy.Trained)
	require.NoError(t, err)
	training.Params.LimitToWorkers = true
	n, _ := newNation(t, allocation.NationCapacity{Workers: map[economy.WorkerSkill]int64{economy.Trained: 1}}, training)
	deposit(t, n, economy.Paper, 10)
	deposit(t, n, economy.Cash, 1000)

	st, err := n.SetRequested(training.ID, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Allocated)
	assert.Equal(t, "hard", st.Caps.Binding)
}

func TestNation_TopTierCannotBeTrained(t *testing.T) {
	_, err := allocation.NewTraining(economy.Expert)

	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
}

func TestNation_ProductionSharesBuildingCapacity(t *testing.T) {
	// GIVEN: a lumber mill with capacity 4 making lumber and paper
	lumber, err := allocation.NewProduction("mill-1", economy.LumberMill, economy.Lumber, "")
	require.NoError(t, err)
	paper, err := allocation.NewProduction("mill-1", economy.LumberMill, economy.Paper, "")
	require.NoError(t, err)
	n, _ := newNation(t, allocation.NationCapacity{Buildings: map[string]int64{"mill-1": 4}}, lumber, paper)
	deposit(t, n, economy.Timber, 100)
	deposit(t, n, economy.Labor, 100)

	// WHEN: lumber takes 3 first
	_, err = n.SetRequested(lumber.ID, 3)
	require.NoError(t, err)
	st, err := n.SetRequested(paper.ID, 3)

	// THEN: paper gets what is left of the building
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Allocated)
	assert.Equal(t, int64(1), st.Caps.Hard)
	assertPool(t, n, economy.Timber, 100, 8, 92)
	assertPool(t, n, economy.Labor, 100, 4, 96)
}

func TestNation_LoweringProductionFreesBuildingForSibling(t *testing.T) {
	// GIVEN: lumber holds 3 of mill-1's 4 slots and paper wants 3 but has 1
	lumber, err := allocation.NewProduction("mill-1", economy.LumberMill, economy.Lumber, "")
	require.NoError(t, err)
	paper, err := allocation.NewProduction("mill-1", economy.LumberMill, economy.Paper, "")
	require.NoError(t, err)
	n, _ := newNation(t, allocation.NationCapacity{Buildings: map[string]int64{"mill-1": 4}}, lumber, paper)
	deposit(t, n, economy.Timber, 100)
	deposit(t, n, economy.Labor, 100)
	_, err = n.SetRequested(lumber.ID, 3)
	require.NoError(t, err)
	st, err := n.SetRequested(paper.ID, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Allocated)

	// WHEN: lumber drops to 1
	_, err = n.SetRequested(lumber.ID, 1)
	require.NoError(t, err)

	// THEN: paper takes up the freed slots
	st, err = n.Status(paper.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Allocated)
	assert.False(t, st.Partial())
	assertPool(t, n, economy.Timber, 100, 8, 92)
	assertPool(t, n, economy.Labor, 100, 4, 96)
	assert.Empty(t, n.CheckInvariants())
}

func TestNation_ProductionLimitedByLabor(t *testing.T) {
	steel, err := allocation.NewProduction("works", economy.SteelMill, economy.Steel, "")
	require.NoError(t, err)
	n, _ := newNation(t, allocation.NationCapacity{Buildings: map[string]int64{"works": 10}}, steel)
	deposit(t, n, economy.Iron, 10)
	deposit(t, n, economy.Coal, 10)
	deposit(t, n, economy.Labor, 3)

	st, err := n.SetRequested(steel.ID, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Allocated)
	assert.Equal(t, "resource:labor", st.Caps.Binding)
}

func TestNation_ProductionVariantUsesItsOwnRecipe(t *testing.T) {
	fishCans, err := allocation.NewProduction("cannery", economy.FoodProcessingCenter, economy.CannedFood, "fish")
	require.NoError(t, err)
	assert.Equal(t, generic.CategoryID("production/cannery/canned_food/fish"), fishCans.ID)

	_, err = allocation.NewProduction("cannery", economy.FoodProcessingCenter, economy.CannedFood, "tofu")
	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
}

func TestNation_BuyOrderUsesOraclePrice(t *testing.T) {
	buy := allocation.NewTradeOrder(economy.Coal, allocation.Buy, decimal.NewFromInt(5))
	sc := allocation.NewStaticCapacities()
	n := allocation.NewNation(player,
		allocation.WithCapacities(sc),
		allocation.WithPrices(allocation.StaticPrices{economy.Coal: decimal.NewFromInt(20)}),
	)
	require.NoError(t, n.AddCategory(buy))
	deposit(t, n, economy.Cash, 100)

	st, err := n.SetRequested(buy.ID, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Allocated)
	assertPool(t, n, economy.Cash, 100, 100, 0)
}

func TestNation_TradeCapacitySharedAcrossOrders(t *testing.T) {
	limit := int64(4)
	sellCoal := allocation.NewTradeOrder(economy.Coal, allocation.Sell, decimal.Zero)
	sellIron := allocation.NewTradeOrder(economy.Iron, allocation.Sell, decimal.Zero)
	n, _ := newNation(t, allocation.NationCapacity{TradeLimit: &limit}, sellCoal, sellIron)
	deposit(t, n, economy.Coal, 10)
	deposit(t, n, economy.Iron, 10)

	_, _ = n.SetRequested(sellCoal.ID, 3)
	st, err := n.SetRequested(sellIron.ID, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Allocated)
}

func TestNation_LoweringTradeOrderFreesCapacity(t *testing.T) {
	limit := int64(4)
	sellCoal := allocation.NewTradeOrder(economy.Coal, allocation.Sell, decimal.Zero)
	sellIron := allocation.NewTradeOrder(economy.Iron, allocation.Sell, decimal.Zero)
	n, _ := newNation(t, allocation.NationCapacity{TradeLimit: &limit}, sellCoal, sellIron)
	deposit(t, n, economy.Coal, 10)
	deposit(t, n, economy.Iron, 10)
	_, _ = n.SetRequested(sellCoal.ID, 4)
	_, _ = n.SetRequested(sellIron.ID, 2)

	_, err := n.SetRequested(sellCoal.ID, 2)
	require.NoError(t, err)

	st, err := n.Status(sellIron.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Allocated)
	assertPool(t, n, economy.Iron, 10, 2, 8)
}

func TestNation_MaxUnitsCapsAnyKind(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 400}, foodRecruitment().WithMaxUnits(2))
	deposit(t, n, economy.CannedFood, 50)

	st, err := n.SetRequested("recruitment", 10)

	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Allocated)
}

// =============================================================================
// RECOMPUTE / PREVIEW
// =============================================================================

func TestNation_RecomputeIsStableOnItsOwnHolds(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	first, _ := n.SetRequested("recruitment", 5)

	again, err := n.Recompute("recruitment")

	require.NoError(t, err)
	assert.Equal(t, first.Holds, again.Holds)
	assertPool(t, n, economy.CannedFood, 5, 5, 0)
}

func TestNation_RaiseThenLowerRestoresState(t *testing.T) {
	// GIVEN: 3 recruits held against 10 food
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 10)
	before, err := n.SetRequested("recruitment", 3)
	require.NoError(t, err)

	// WHEN: raised to 5 and lowered back to 3
	raised, err := n.SetRequested("recruitment", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), raised.Allocated)
	after, err := n.SetRequested("recruitment", 3)
	require.NoError(t, err)

	// THEN: the same holds and pool as before the round trip
	assert.Equal(t, before.Allocated, after.Allocated)
	assert.Equal(t, before.Holds, after.Holds)
	assertPool(t, n, economy.CannedFood, 10, 3, 7)
	assert.Empty(t, n.CheckInvariants())
}

func TestNation_HugeStockDoesNotOverflow(t *testing.T) {
	// GIVEN: more food than fits in an int64 count of units
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	require.NoError(t, n.Deposit(economy.CannedFood, generic.Amount{Value: decimal.New(1, 19), Unit: generic.UnitGoods}))

	// WHEN: requesting 5 recruits
	st, err := n.SetRequested("recruitment", 5)

	// THEN: the resource cap saturates instead of wrapping negative
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Allocated)
	assert.Equal(t, int64(math.MaxInt64), st.Caps.Resource)
	assert.Empty(t, n.CheckInvariants())
}

func TestNation_TinyUnitCostDoesNotOverflow(t *testing.T) {
	crumbs := &allocation.Category{
		ID:   "recruitment",
		Kind: allocation.Recruitment,
		Params: allocation.Params{
			Cost: generic.Cost{{Resource: economy.CannedFood, Amount: generic.Amount{Value: decimal.New(1, -30), Unit: generic.UnitGoods}}},
		},
	}
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, crumbs)
	deposit(t, n, economy.CannedFood, 1)

	st, err := n.SetRequested("recruitment", 5)

	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Allocated)
	assert.GreaterOrEqual(t, st.Caps.Resource, int64(0))
}

func TestNation_RecomputeAfterCapacityDrop(t *testing.T) {
	n, sc := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 10)
	_, _ = n.SetRequested("recruitment", 8)

	sc.Update(player, func(c *allocation.NationCapacity) { c.Provinces = 8 })
	st, err := n.Recompute("recruitment")

	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Allocated)
	assertPool(t, n, economy.CannedFood, 10, 2, 8)
}

func TestNation_PreviewDoesNotReserve(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)

	st, err := n.Preview("recruitment", 8)

	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Allocated)
	assert.Empty(t, st.Holds)
	assertPool(t, n, economy.CannedFood, 5, 0, 5)
}

func TestNation_AvailableReadsPool(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 2)

	avail, err := n.Available("recruitment", economy.CannedFood)
	require.NoError(t, err)
	assert.True(t, avail.Value.Equal(decimal.NewFromInt(3)))

	untouched, err := n.Available("recruitment", economy.Gems)
	require.NoError(t, err)
	assert.True(t, untouched.IsZero())
	assert.Len(t, n.Pools(), 1, "reads must not create pools")

	_, err = n.Available("missing", economy.Gems)
	assert.ErrorIs(t, err, generic.ErrCategoryNotFound)
}

func TestNation_DuplicateCategoryRejected(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{}, foodRecruitment())

	err := n.AddCategory(foodRecruitment())

	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
}

// =============================================================================
// SYNC / SAVE POINTS
// =============================================================================

func TestNation_SyncRefusedWhileReserved(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	stock := allocation.NewStaticStockpile()
	stock.Set(player, economy.CannedFood, 9)
	require.Empty(t, n.Sync(stock, nil))
	assertPool(t, n, economy.CannedFood, 9, 0, 9)

	_, _ = n.SetRequested("recruitment", 1)
	errs := n.Sync(stock, nil)

	require.NotEmpty(t, errs)
	assert.True(t, errors.Is(errs[0], generic.ErrLiveReservations))
}

func TestNation_SyncReadsTreasury(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{})
	treasury := allocation.NewStaticTreasury()
	treasury.Set(player, decimal.NewFromInt(1234))

	require.Empty(t, n.Sync(nil, treasury))

	assertPool(t, n, economy.Cash, 1234, 0, 1234)
}

func TestNation_SavePointRoundTrip(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 3)

	_, err := n.SavePoint()
	require.ErrorIs(t, err, generic.ErrLiveReservations)

	_ = n.Finalize()
	_ = n.Reset(true)
	sp, err := n.SavePoint()
	require.NoError(t, err)
	assert.Equal(t, int64(3), sp.Requested["recruitment"])

	fresh, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	require.NoError(t, fresh.Restore(sp))
	fresh.RecomputeAll()
	st, _ := fresh.Status("recruitment")
	assert.Equal(t, int64(2), st.Allocated)
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func TestValidateRequested(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    int64
		wantErr bool
	}{
		{"whole", 7, 7, false},
		{"fraction floors", 2.9, 2, false},
		{"zero", 0, 0, false},
		{"negative", -1, 0, true},
		{"nan", math.NaN(), 0, true},
		{"infinite", math.Inf(1), 0, true},
		{"too large", allocation.MaxRequest + 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := allocation.ValidateRequested(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, generic.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNation_NegativeRequestLeavesStateUntouched(t *testing.T) {
	n, _ := newNation(t, allocation.NationCapacity{Provinces: 40}, foodRecruitment())
	deposit(t, n, economy.CannedFood, 5)
	_, _ = n.SetRequested("recruitment", 2)

	_, err := n.SetRequested("recruitment", -4)

	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
	st, _ := n.Status("recruitment")
	assert.Equal(t, int64(2), st.Allocated)
}
