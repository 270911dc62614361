/*
Package turn drives the allocation engine across turn phases.

PHASE CYCLE:
  PlayerTurn ──EndTurn──► Processing ──Advance──► EnemyTurn ──Advance──► PlayerTurn
      ▲                       │                      │                      │
      │                  finalize every        reopen AI nations,      finalize AI,
      │                  nation, journal       planner adjusts them    turn++, reset
      │                  consumption                                   all, sync stock
      └──────────────────────────────────────────────────────────────────────┘

INVARIANTS:
  1. No live reservation survives Processing into EnemyTurn.
  2. Categories are finalized in the fixed order
     Recruitment → Training → Production → TradeOrder.
  3. Every nation is reset (reserved == 0) when a PlayerTurn begins; the
     save point is taken at that moment.
  4. Invariant violations are clamped and logged, never a panic.

CONCURRENCY:
  Whole nations finalize in parallel (bounded errgroup). Within a nation
  everything is sequential. The phase only flips after every nation's
  finalize returned, so no caller observes a half-finalized turn.

SEE ALSO:
  - allocation/nation.go: Finalize, Reset, Sync
  - api/scheduler.go: Calls Advance on a ticker
*/
package turn

import "fmt"

// =============================================================================
// PHASE
// =============================================================================

type Phase string

const (
	PlayerTurn Phase = "player_turn"
	Processing Phase = "processing"
	EnemyTurn  Phase = "enemy_turn"
)

// Next returns the phase that follows p.
func (p Phase) Next() Phase {
	switch p {
	case PlayerTurn:
		return Processing
	case Processing:
		return EnemyTurn
	default:
		return PlayerTurn
	}
}

func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PlayerTurn, Processing, EnemyTurn:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// State is a consistent read of the controller's phase and turn.
type State struct {
	Phase Phase
	Turn  int
}
