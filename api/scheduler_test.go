package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allocation-engine/turn"
)

func TestPhaseScheduler_AdvancesAutomaticPhases(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, RouterOptions{})
	sched := NewPhaseScheduler(s.store, s.handler, nil)

	// GIVEN: Nothing loaded, the scheduler has nothing to do
	assert.False(t, sched.Tick(ctx))

	// GIVEN: A game whose turn was just ended
	s.load(t, "processing")
	g := s.handler.Game()

	// WHEN: The scheduler ticks
	require.True(t, sched.Tick(ctx))
	assert.Equal(t, turn.EnemyTurn, g.Ctrl.Phase())

	require.True(t, sched.Tick(ctx))
	assert.Equal(t, turn.PlayerTurn, g.Ctrl.Phase())

	// THEN: It waits for the player
	assert.False(t, sched.Tick(ctx))

	runs, err := s.store.GetPhaseRuns(ctx, "completed")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Turn)
	from := []string{runs[0].FromPhase, runs[1].FromPhase}
	assert.ElementsMatch(t, []string{"processing", "enemy_turn"}, from)

	// AND: The processing run delivered the recruitment handoff
	for _, r := range runs {
		if r.FromPhase == "processing" {
			assert.Equal(t, 1, r.Handoffs)
			assert.Equal(t, "enemy_turn", r.ToPhase)
		}
	}
}

func TestPhaseScheduler_StartStop(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	sched := NewPhaseScheduler(s.store, s.handler, nil)

	sched.Enabled = false
	sched.Start()
	sched.Stop()

	sched.Enabled = true
	sched.Start()
	sched.Start()
	sched.Stop()
	sched.Stop()
}
