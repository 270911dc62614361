package turn_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/turn"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeAllocationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

type allocationContext struct {
	caps    *allocation.StaticCapacities
	queue   *allocation.EffectQueue
	ctrl    *turn.Controller
	nations map[generic.NationID]*allocation.Nation
	err     error
}

func (ac *allocationContext) reset() {
	ac.caps = allocation.NewStaticCapacities()
	ac.queue = allocation.NewEffectQueue()
	ac.ctrl = turn.NewController(turn.WithEffectSink(ac.queue))
	ac.nations = make(map[generic.NationID]*allocation.Nation)
	ac.err = nil
}

func (ac *allocationContext) nation(id string) (*allocation.Nation, error) {
	n, ok := ac.nations[generic.NationID(id)]
	if !ok {
		return nil, fmt.Errorf("nation %q was not set up", id)
	}
	return n, nil
}

// Setup steps

func (ac *allocationContext) aHumanNationWithProvinces(id string, provinces int) error {
	nid := generic.NationID(id)
	ac.caps.Set(nid, allocation.NationCapacity{Provinces: int64(provinces)})
	n := allocation.NewNation(nid, allocation.WithCapacities(ac.caps))
	ac.nations[nid] = n
	return ac.ctrl.AddNation(n)
}

func (ac *allocationContext) aRecruitmentCategoryCosting(id string, qty int, good string) error {
	n, err := ac.nation(id)
	if err != nil {
		return err
	}
	g, err := economy.ParseGood(good)
	if err != nil {
		return err
	}
	return n.AddCategory(&allocation.Category{
		ID:     "recruitment",
		Kind:   allocation.Recruitment,
		Params: allocation.Params{Cost: generic.Cost{{Resource: g, Amount: generic.NewAmountFromInt(int64(qty), generic.UnitGoods)}}},
	})
}

func (ac *allocationContext) aSellOrderFor(id, good string) error {
	n, err := ac.nation(id)
	if err != nil {
		return err
	}
	g, err := economy.ParseGood(good)
	if err != nil {
		return err
	}
	return n.AddCategory(allocation.NewTradeOrder(g, allocation.Sell, decimal.Zero))
}

func (ac *allocationContext) theNationHolds(id string, qty int, good string) error {
	g, err := economy.ParseGood(good)
	if err != nil {
		return err
	}
	return ac.ctrl.Deposit(context.Background(), generic.NationID(id), g, generic.NewAmountFromInt(int64(qty), generic.UnitGoods), "")
}

// Action steps

func (ac *allocationContext) requests(id string, qty int, category string) error {
	_, err := ac.ctrl.SetRequested(context.Background(), generic.NationID(id), generic.CategoryID(category), float64(qty))
	return err
}

func (ac *allocationContext) triesToRequest(id string, qty int, category string) error {
	_, ac.err = ac.ctrl.SetRequested(context.Background(), generic.NationID(id), generic.CategoryID(category), float64(qty))
	return nil
}

func (ac *allocationContext) thePlayerEndsTheTurn() error {
	return ac.ctrl.EndTurn(context.Background())
}

func (ac *allocationContext) theEngineAdvances() error {
	return ac.ctrl.Advance(context.Background())
}

// Assertion steps

func (ac *allocationContext) shouldHaveAllocated(category, id string, want int) error {
	n, err := ac.nation(id)
	if err != nil {
		return err
	}
	got, err := n.Allocated(generic.CategoryID(category))
	if err != nil {
		return err
	}
	if got != int64(want) {
		return fmt.Errorf("expected %d allocated, got %d", want, got)
	}
	return nil
}

func (ac *allocationContext) shouldHaveRequestedAndAllocated(category, id string, requested, allocated int) error {
	n, err := ac.nation(id)
	if err != nil {
		return err
	}
	st, err := n.Status(generic.CategoryID(category))
	if err != nil {
		return err
	}
	if st.Requested != int64(requested) || st.Allocated != int64(allocated) {
		return fmt.Errorf("expected requested=%d allocated=%d, got requested=%d allocated=%d",
			requested, allocated, st.Requested, st.Allocated)
	}
	return nil
}

func (ac *allocationContext) thePoolShouldRead(good, id string, onHand, reserved, available int) error {
	n, err := ac.nation(id)
	if err != nil {
		return err
	}
	g, err := economy.ParseGood(good)
	if err != nil {
		return err
	}
	v := n.Pool(g)
	got := [3]int64{v.OnHand.Value.IntPart(), v.Reserved.Value.IntPart(), v.Available.Value.IntPart()}
	want := [3]int64{int64(onHand), int64(reserved), int64(available)}
	if got != want {
		return fmt.Errorf("expected on_hand/reserved/available %v, got %v", want, got)
	}
	return nil
}

func (ac *allocationContext) thePhaseShouldBe(phase string) error {
	if got := ac.ctrl.Phase(); string(got) != phase {
		return fmt.Errorf("expected phase %s, got %s", phase, got)
	}
	return nil
}

func (ac *allocationContext) theTurnShouldBe(want int) error {
	if got := ac.ctrl.Turn(); int(got) != want {
		return fmt.Errorf("expected turn %d, got %d", want, got)
	}
	return nil
}

func (ac *allocationContext) anEffectShouldHaveBeenDelivered(kind string, qty int, id string) error {
	k, err := allocation.ParseKind(kind)
	if err != nil {
		return err
	}
	for _, h := range ac.queue.All() {
		if h.Kind == k && h.NationID == generic.NationID(id) {
			if h.Quantity != int64(qty) {
				return fmt.Errorf("expected %s effect of %d, got %d", kind, qty, h.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("no %s effect delivered to %s", kind, id)
}

func (ac *allocationContext) theRequestShouldBeRejectedAsOutOfPhase() error {
	if !errors.Is(ac.err, generic.ErrWrongPhase) {
		return fmt.Errorf("expected ErrWrongPhase, got %v", ac.err)
	}
	return nil
}

func InitializeAllocationScenario(ctx *godog.ScenarioContext) {
	ac := &allocationContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		ac.reset()
		return ctx, nil
	})

	ctx.Step(`^a human nation "([^"]*)" with (\d+) provinces$`, ac.aHumanNationWithProvinces)
	ctx.Step(`^the nation "([^"]*)" has a recruitment category costing (\d+) "([^"]*)" per unit$`, ac.aRecruitmentCategoryCosting)
	ctx.Step(`^the nation "([^"]*)" has a sell order for "([^"]*)"$`, ac.aSellOrderFor)
	ctx.Step(`^the nation "([^"]*)" holds (\d+) "([^"]*)"$`, ac.theNationHolds)
	ctx.Step(`^"([^"]*)" requests (\d+) units? of "([^"]*)"$`, ac.requests)
	ctx.Step(`^"([^"]*)" tries to request (\d+) units? of "([^"]*)"$`, ac.triesToRequest)
	ctx.Step(`^the player ends the turn$`, ac.thePlayerEndsTheTurn)
	ctx.Step(`^the engine advances$`, ac.theEngineAdvances)
	ctx.Step(`^"([^"]*)" of "([^"]*)" should have (\d+) units allocated$`, ac.shouldHaveAllocated)
	ctx.Step(`^"([^"]*)" of "([^"]*)" should have (\d+) units requested and (\d+) allocated$`, ac.shouldHaveRequestedAndAllocated)
	ctx.Step(`^the "([^"]*)" pool of "([^"]*)" should read on hand (\d+), reserved (\d+), available (\d+)$`, ac.thePoolShouldRead)
	ctx.Step(`^the phase should be "([^"]*)"$`, ac.thePhaseShouldBe)
	ctx.Step(`^the turn should be (\d+)$`, ac.theTurnShouldBe)
	ctx.Step(`^a "([^"]*)" effect of (\d+) units should have been delivered to "([^"]*)"$`, ac.anEffectShouldHaveBeenDelivered)
	ctx.Step(`^the request should be rejected as out of phase$`, ac.theRequestShouldBeRejectedAsOutOfPhase)
}
