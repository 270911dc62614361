package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/generic/store"
	"github.com/warp/allocation-engine/turn"
)

func TestParse_DefaultPreset(t *testing.T) {
	rs, err := factory.Default()
	require.NoError(t, err)

	built, err := rs.Build(nil)
	require.NoError(t, err)

	require.Len(t, built.Nations, 2)
	assert.Equal(t, "default", built.Name)
	player := built.Nations[0]
	assert.Equal(t, generic.NationID("player"), player.ID)
	assert.False(t, player.AI)
	assert.True(t, built.Nations[1].AI)

	ids := map[generic.CategoryID]bool{}
	for _, st := range player.Statuses() {
		ids[st.CategoryID] = true
	}
	assert.True(t, ids["recruitment"])
	assert.True(t, ids["training/untrained"])
	assert.True(t, ids["production/mill-1/lumber"])
	assert.True(t, ids["production/cannery-1/canned_food/fish"])
	assert.True(t, ids["trade/buy/iron"])

	assert.Equal(t, int64(4), built.Capacities.BuildingCapacity("player", "mill-1"))
	assert.Equal(t, int64(10), built.Capacities.Workers("player", economy.Untrained))
}

func TestParse_AcceptsJSON(t *testing.T) {
	raw := `{"name":"tiny","nations":[{"id":"solo","provinces":4,"categories":[{"kind":"recruitment"}]}]}`

	rs, err := factory.Parse([]byte(raw))

	require.NoError(t, err)
	assert.Equal(t, "tiny", rs.Name)
	require.Len(t, rs.Nations, 1)
	assert.Equal(t, int64(4), rs.Nations[0].Provinces)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing nations", `name: x`},
		{"unknown key", "name: x\nnations: [{id: a, colour: red}]"},
		{"negative capacity", "name: x\nnations: [{id: a, buildings: [{id: b, kind: refinery, capacity: -1}]}]"},
		{"unknown kind", "name: x\nnations: [{id: a, categories: [{kind: banking}]}]"},
		{"bad direction", "name: x\nnations: [{id: a, categories: [{kind: trade_order, good: coal, direction: lend}]}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.Parse([]byte(tt.raw))
			assert.ErrorContains(t, err, "schema")
		})
	}
}

func TestBuild_DomainErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown good", "name: x\nnations: [{id: a, stock: {unobtainium: 1}}]"},
		{"undeclared building", "name: x\nnations: [{id: a, categories: [{kind: production, building: nope, output: lumber}]}]"},
		{"no recipe", "name: x\nnations: [{id: a, buildings: [{id: r, kind: refinery, capacity: 1}], categories: [{kind: production, building: r, output: lumber}]}]"},
		{"top tier training", "name: x\nnations: [{id: a, categories: [{kind: training, skill: expert}]}]"},
		{"duplicate nation", "name: x\nnations: [{id: a}, {id: a}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := factory.Parse([]byte(tt.raw))
			require.NoError(t, err)

			_, err = rs.Build(nil)

			assert.Error(t, err)
		})
	}
}

func TestApply_SeedsStockOnce(t *testing.T) {
	ctx := context.Background()
	rs, err := factory.Default()
	require.NoError(t, err)
	built, err := rs.Build(nil)
	require.NoError(t, err)
	ledger := generic.NewLedger(store.NewMemory())
	ctrl := turn.NewController(turn.WithLedger(ledger), turn.WithPlanner(built.Planner()))

	require.NoError(t, built.Apply(ctx, ctrl))

	player, err := ctrl.Nation("player")
	require.NoError(t, err)
	food := player.Pool(economy.CannedFood)
	assert.Equal(t, int64(5), food.OnHand.Value.IntPart())
	// opening request of 2 recruits is already reserved
	assert.Equal(t, int64(2), food.Reserved.Value.IntPart())

	// the preset credits labor every turn
	assert.NotEmpty(t, built.Income("player", 1))
}

func TestPlanner_DrivesAINations(t *testing.T) {
	ctx := context.Background()
	rs, err := factory.Default()
	require.NoError(t, err)
	built, err := rs.Build(nil)
	require.NoError(t, err)
	queue := allocation.NewEffectQueue()
	ctrl := turn.NewController(
		turn.WithOptions(built.Options(turn.Options{})),
		turn.WithPlanner(built.Planner()),
		turn.WithEffectSink(queue),
	)
	require.NoError(t, built.Apply(ctx, ctrl))

	require.NoError(t, ctrl.EndTurn(ctx))
	require.NoError(t, ctrl.Advance(ctx))
	require.NoError(t, ctrl.Advance(ctx))

	var rivalKinds []allocation.Kind
	for _, h := range queue.All() {
		if h.NationID == "rival" {
			rivalKinds = append(rivalKinds, h.Kind)
		}
	}
	assert.Equal(t, []allocation.Kind{allocation.Recruitment, allocation.TradeOrder}, rivalKinds)
}
