package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/turn"
)

// =============================================================================
// GAME - A ruleset running on a controller
// =============================================================================

// GameOptions wires a game to its persistence. Every store is optional.
type GameOptions struct {
	Engine     turn.Options
	Ledger     generic.Ledger
	Handoffs   allocation.HandoffStore
	SavePoints generic.SavePointStore
	Sink       allocation.EffectSink
	// Settle credits production output and trade proceeds on delivery.
	Settle bool
	Log    *slog.Logger
}

// Game bundles a built ruleset with the controller running it. Every
// delivered handoff is also kept in Queue.
type Game struct {
	Name  string
	Ctrl  *turn.Controller
	Rules *Built
	Queue *allocation.EffectQueue
}

// NewGame builds the ruleset and applies its opening stock and requests.
func NewGame(ctx context.Context, rs *RulesetJSON, o GameOptions) (*Game, error) {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	built, err := rs.Build(log)
	if err != nil {
		return nil, err
	}

	queue := allocation.NewEffectQueue()
	var sink allocation.EffectSink = queue
	if o.Sink != nil {
		sink = allocation.MultiSink{queue, o.Sink}
	}

	opts := []turn.Option{
		turn.WithOptions(built.Options(o.Engine)),
		turn.WithEffectSink(sink),
		turn.WithPlanner(built.Planner()),
		turn.WithIncome(built),
		turn.WithLogger(log.With("game", built.Name)),
	}
	if o.Ledger != nil {
		opts = append(opts, turn.WithLedger(o.Ledger))
	}
	if o.Handoffs != nil {
		opts = append(opts, turn.WithHandoffStore(o.Handoffs))
	}
	if o.SavePoints != nil {
		opts = append(opts, turn.WithSavePoints(o.SavePoints))
	}
	if o.Settle {
		opts = append(opts, turn.WithSettlement(built.Prices))
	}

	ctrl := turn.NewController(opts...)
	if err := built.Apply(ctx, ctrl); err != nil {
		return nil, fmt.Errorf("apply ruleset %s: %w", built.Name, err)
	}

	return &Game{Name: built.Name, Ctrl: ctrl, Rules: built, Queue: queue}, nil
}

// EndTurn ends the player's turn. With AutoAdvance the controller runs on to
// the next PlayerTurn, crediting its income on the way in.
func (g *Game) EndTurn(ctx context.Context) error { return g.Ctrl.EndTurn(ctx) }

// Advance performs one automatic transition.
func (g *Game) Advance(ctx context.Context) error { return g.Ctrl.Advance(ctx) }

// RunTurn plays one complete turn cycle into the next PlayerTurn.
func (g *Game) RunTurn(ctx context.Context) error { return g.Ctrl.RunTurn(ctx) }
