/*
scheduler.go - Automated phase scheduler

PURPOSE:
  Moves the game through the automatic phases. Once the player ends a turn
  the controller sits in Processing; the scheduler advances it to EnemyTurn
  and then to the next PlayerTurn without further client calls.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Does nothing during PlayerTurn: only the player's end-turn leaves it
  - Performs one transition per tick so clients can observe EnemyTurn
  - Records every transition as a phase run for audit and UI display

CONFIGURATION:
  - Interval: How often to check (default: 2 seconds)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPhaseScheduler(store, handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AdvancePhase endpoint (manual transition)
  - turn/controller.go: Advance
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/allocation-engine/store/sqlite"
	"github.com/warp/allocation-engine/turn"
)

// PhaseScheduler advances the automatic phases on a timer.
type PhaseScheduler struct {
	Store    *sqlite.Store
	Handler  *Handler
	Interval time.Duration
	Enabled  bool
	Log      *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPhaseScheduler creates a new scheduler.
func NewPhaseScheduler(store *sqlite.Store, handler *Handler, log *slog.Logger) *PhaseScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &PhaseScheduler{
		Store:    store,
		Handler:  handler,
		Interval: 2 * time.Second,
		Enabled:  true,
		Log:      log.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (ps *PhaseScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Log.Info("disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.Interval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run()

	ps.Log.Info("started", "interval", ps.Interval)
}

// Stop stops the scheduler and waits for an in-flight tick.
func (ps *PhaseScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Log.Info("stopped")
	}
}

func (ps *PhaseScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.Tick(context.Background())

	for {
		select {
		case <-ps.ticker.C:
			ps.Tick(context.Background())
		case <-ps.stop:
			return
		}
	}
}

// Tick performs at most one automatic transition and records it. It reports
// whether a transition ran.
func (ps *PhaseScheduler) Tick(ctx context.Context) bool {
	g := ps.Handler.Game()
	if g == nil {
		return false
	}
	st := g.Ctrl.State()
	if st.Phase == turn.PlayerTurn {
		return false
	}

	done, err := ps.Store.IsPhaseRunComplete(ctx, st.Turn, string(st.Phase))
	if err != nil {
		ps.Log.Error("failed to check phase run", "turn", st.Turn, "phase", string(st.Phase), "error", err)
		return false
	}
	if done {
		ps.Log.Warn("transition already recorded", "turn", st.Turn, "phase", string(st.Phase))
		return false
	}

	started := time.Now()
	run := sqlite.PhaseRun{
		ID:        uuid.NewString(),
		Turn:      st.Turn,
		FromPhase: string(st.Phase),
		ToPhase:   string(st.Phase.Next()),
		Status:    "running",
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := ps.Store.SavePhaseRun(ctx, run); err != nil {
		ps.Log.Error("failed to record phase run", "error", err)
	}

	before := len(g.Queue.All())
	advanceErr := g.Advance(ctx)

	completed := time.Now()
	run.CompletedAt = &completed
	run.Handoffs = len(g.Queue.All()) - before
	run.ToPhase = string(g.Ctrl.Phase())
	if advanceErr != nil {
		run.Status = "failed"
		run.Error = advanceErr.Error()
		ps.Log.Error("transition failed", "turn", st.Turn, "from", run.FromPhase, "error", advanceErr)
	} else {
		run.Status = "completed"
		ps.Log.Info("transition completed", "turn", st.Turn, "from", run.FromPhase, "to", run.ToPhase, "handoffs", run.Handoffs)
	}
	if err := ps.Store.SavePhaseRun(ctx, run); err != nil {
		ps.Log.Error("failed to record phase run", "error", err)
	}
	return advanceErr == nil
}
