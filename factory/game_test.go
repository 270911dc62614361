package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/generic/store"
	"github.com/warp/allocation-engine/turn"
)

func newDefaultGame(t *testing.T, o factory.GameOptions) *factory.Game {
	t.Helper()
	rs, err := factory.Default()
	require.NoError(t, err)
	g, err := factory.NewGame(context.Background(), rs, o)
	require.NoError(t, err)
	return g
}

func TestGame_RunTurnSettlesAndPaysIncome(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	g := newDefaultGame(t, factory.GameOptions{
		Ledger:     generic.NewLedger(mem),
		SavePoints: mem,
		Settle:     true,
	})

	// WHEN: One full turn is played
	require.NoError(t, g.RunTurn(ctx))

	// THEN: Turn 2 has started
	assert.Equal(t, generic.Turn(2), g.Ctrl.Turn())
	assert.Equal(t, turn.PlayerTurn, g.Ctrl.Phase())

	player, err := g.Ctrl.Nation("player")
	require.NoError(t, err)
	pool := func(r generic.ResourceKind) int64 { return player.Pool(r).OnHand.Value.IntPart() }

	// AND: The two recruits and the two lumber were committed
	assert.Equal(t, int64(3), pool(economy.CannedFood))
	assert.Equal(t, int64(2), pool(economy.Lumber))
	// 12 labor - 2 used by the mill + 12 income
	assert.Equal(t, int64(22), pool(economy.Labor))
	// 20 timber - 4 + 6 income
	assert.Equal(t, int64(22), pool(economy.Timber))

	// AND: The rival sold two coal at 12 on its own turn
	rival, err := g.Ctrl.Nation("rival")
	require.NoError(t, err)
	assert.Equal(t, int64(21), rival.Pool(economy.Coal).OnHand.Value.IntPart())
	assert.Equal(t, int64(524), rival.Pool(economy.Cash).OnHand.Value.IntPart())

	// AND: The new turn's save point was taken with nothing reserved
	sp, err := mem.LatestSavePoint(ctx, "player")
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, generic.Turn(2), sp.Turn)
}

func TestGame_StepwiseAdvancePaysIncomeOnce(t *testing.T) {
	ctx := context.Background()
	g := newDefaultGame(t, factory.GameOptions{Ledger: generic.NewLedger(store.NewMemory())})

	require.NoError(t, g.EndTurn(ctx))
	require.NoError(t, g.Advance(ctx))
	assert.Equal(t, turn.EnemyTurn, g.Ctrl.Phase())
	require.NoError(t, g.Advance(ctx))
	assert.Equal(t, turn.PlayerTurn, g.Ctrl.Phase())

	// Advancing in PlayerTurn changes nothing and pays nothing
	require.NoError(t, g.Advance(ctx))

	player, err := g.Ctrl.Nation("player")
	require.NoError(t, err)
	assert.Equal(t, int64(22), player.Pool(economy.Labor).OnHand.Value.IntPart())
}

func TestGame_QueueSeesEveryHandoff(t *testing.T) {
	ctx := context.Background()
	g := newDefaultGame(t, factory.GameOptions{Engine: turn.Options{AutoAdvance: true}})

	require.NoError(t, g.EndTurn(ctx))

	assert.Equal(t, generic.Turn(2), g.Ctrl.Turn())
	// player: recruitment + lumber, rival: recruitment + coal sale
	assert.Len(t, g.Queue.All(), 4)
}

func TestGame_CarriedRequestUsesNewTurnIncome(t *testing.T) {
	ctx := context.Background()
	rs, err := factory.Parse([]byte(`
name: carry
carry_over_requested: true
nations:
  - id: player
    provinces: 40
    stock: {canned_food: 1, clothing: 1, furniture: 1}
    income: {canned_food: 3, clothing: 3, furniture: 3}
    categories:
      - {kind: recruitment, requested: 3}
`))
	require.NoError(t, err)
	g, err := factory.NewGame(ctx, rs, factory.GameOptions{})
	require.NoError(t, err)
	player, err := g.Ctrl.Nation("player")
	require.NoError(t, err)

	// GIVEN: 3 recruits requested but stock for only 1
	st, err := player.Status("recruitment")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Allocated)

	// WHEN: the turn is played and turn 2 brings 3 of everything
	require.NoError(t, g.RunTurn(ctx))

	// THEN: the carried request is fully covered by the new income
	st, err = player.Status("recruitment")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Requested)
	assert.Equal(t, int64(3), st.Allocated)
	assert.Zero(t, player.Pool(economy.CannedFood).Available.Value.IntPart())
}
