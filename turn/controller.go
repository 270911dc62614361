package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/metrics"
)

// =============================================================================
// OPTIONS
// =============================================================================

type Options struct {
	// CarryOverRequested keeps each category's requested count across the
	// turn boundary and re-reserves it once the new turn's stock is known.
	CarryOverRequested bool
	// Parallelism bounds how many nations finalize at once.
	Parallelism int
	// AutoAdvance runs Processing and EnemyTurn inside EndTurn.
	AutoAdvance bool
}

type Option func(*Controller)

func WithOptions(o Options) Option { return func(c *Controller) { c.opts = o } }
func WithStockpile(s allocation.Stockpile) Option { return func(c *Controller) { c.stockpile = s } }
func WithTreasury(t allocation.Treasury) Option { return func(c *Controller) { c.treasury = t } }
func WithEffectSink(s allocation.EffectSink) Option { return func(c *Controller) { c.sink = s } }
func WithLedger(l generic.Ledger) Option { return func(c *Controller) { c.ledger = l } }
func WithHandoffStore(s allocation.HandoffStore) Option { return func(c *Controller) { c.handoffs = s } }
func WithSavePoints(s generic.SavePointStore) Option { return func(c *Controller) { c.savepoints = s } }
func WithPlanner(p Planner) Option { return func(c *Controller) { c.planner = p } }
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the phase state machine and the set of nations. It is the
// entry point collaborators use: SetRequested, Allocated, Available, EndTurn.
type Controller struct {
	// advanceMu serializes phase transitions end to end, including the
	// unlocked delivery and planning steps.
	advanceMu sync.Mutex

	mu      sync.RWMutex
	phase   Phase
	turn    generic.Turn
	nations map[generic.NationID]*allocation.Nation
	pending []allocation.Handoff

	opts       Options
	stockpile  allocation.Stockpile
	treasury   allocation.Treasury
	sink       allocation.EffectSink
	ledger     generic.Ledger
	handoffs   allocation.HandoffStore
	savepoints generic.SavePointStore
	planner    Planner
	income     IncomeSource
	settle     bool
	prices     allocation.PriceOracle
	log        *slog.Logger

	// keys holds deposit idempotency keys when there is no ledger.
	keysMu sync.Mutex
	keys   map[string]struct{}
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		phase:   PlayerTurn,
		turn:    1,
		nations: make(map[generic.NationID]*allocation.Nation),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.Parallelism <= 0 {
		c.opts.Parallelism = 4
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// AddNation registers a nation. Nation IDs are unique.
func (c *Controller) AddNation(n *allocation.Nation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nations[n.ID]; exists {
		return &generic.InvalidRequestError{Field: "nation", Value: string(n.ID), Reason: "already registered"}
	}
	c.nations[n.ID] = n
	return nil
}

func (c *Controller) Nation(id generic.NationID) (*allocation.Nation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nation(id)
}

// Nations returns every nation ordered by ID.
func (c *Controller) Nations() []*allocation.Nation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sorted(func(*allocation.Nation) bool { return true })
}

func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Controller) Turn() generic.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turn
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{Phase: c.phase, Turn: int(c.turn)}
}

// Options returns the controller's effective options.
func (c *Controller) Options() Options { return c.opts }

// =============================================================================
// COLLABORATOR API
// =============================================================================

// SetRequested forwards to the nation if the phase allows it: human nations
// plan during PlayerTurn, AI nations during EnemyTurn.
func (c *Controller) SetRequested(_ context.Context, nation generic.NationID, category generic.CategoryID, amount float64) (allocation.Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.nation(nation)
	if err != nil {
		return allocation.Status{}, err
	}
	if !c.mutable(n) {
		return allocation.Status{}, fmt.Errorf("set requested for %s during %s: %w", nation, c.phase, generic.ErrWrongPhase)
	}
	return n.SetRequested(category, amount)
}

func (c *Controller) Allocated(nation generic.NationID, category generic.CategoryID) (int64, error) {
	n, err := c.Nation(nation)
	if err != nil {
		return 0, err
	}
	return n.Allocated(category)
}

func (c *Controller) Available(nation generic.NationID, category generic.CategoryID, resource generic.ResourceKind) (generic.Amount, error) {
	n, err := c.Nation(nation)
	if err != nil {
		return generic.Amount{}, err
	}
	return n.Available(category, resource)
}

func (c *Controller) Preview(nation generic.NationID, category generic.CategoryID, amount float64) (allocation.Status, error) {
	n, err := c.Nation(nation)
	if err != nil {
		return allocation.Status{}, err
	}
	return n.Preview(category, amount)
}

// Deposit records stock arriving from outside the engine: production output,
// goods that became reachable, cash income. Journaled when a ledger is set.
// A repeated idempotency key is accepted once, with or without a ledger.
func (c *Controller) Deposit(ctx context.Context, nation generic.NationID, resource generic.ResourceKind, amount generic.Amount, idempotencyKey string) error {
	c.mu.RLock()
	n, err := c.nation(nation)
	turn := c.turn
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return c.deposit(ctx, n, turn, resource, amount, idempotencyKey)
}

// deposit credits n without touching c.mu, so turn-start income can run
// while the caller holds the lock.
func (c *Controller) deposit(ctx context.Context, n *allocation.Nation, turn generic.Turn, resource generic.ResourceKind, amount generic.Amount, idempotencyKey string) error {
	if !amount.IsPositive() {
		return &generic.InvalidRequestError{Field: "amount", Value: amount.Value.String(), Reason: "must be positive"}
	}

	if c.ledger == nil {
		if idempotencyKey != "" && !c.claimKey(idempotencyKey) {
			c.log.Info("duplicate deposit ignored", "nation", string(n.ID), "key", idempotencyKey)
			return nil
		}
		return n.Deposit(resource, amount)
	}

	tx := generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		NationID:       n.ID,
		Resource:       resource,
		Turn:           turn,
		Delta:          amount,
		Type:           generic.TxDeposit,
		Reason:         "deposit",
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now(),
	}
	if err := c.ledger.Append(ctx, tx); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			c.log.Info("duplicate deposit ignored", "nation", string(n.ID), "key", idempotencyKey)
			return nil
		}
		return fmt.Errorf("journal deposit: %w", err)
	}
	return n.Deposit(resource, amount)
}

// claimKey remembers idempotency keys when no ledger is there to enforce
// them. It reports false for a key already seen.
func (c *Controller) claimKey(key string) bool {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	if _, dup := c.keys[key]; dup {
		return false
	}
	if c.keys == nil {
		c.keys = make(map[string]struct{})
	}
	c.keys[key] = struct{}{}
	return true
}

// Handoffs returns the persisted handoffs of one nation and turn.
func (c *Controller) Handoffs(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]allocation.Handoff, error) {
	if c.handoffs == nil {
		return nil, nil
	}
	return c.handoffs.ListHandoffs(ctx, nation, turn)
}

// Journal returns the journal entries of one nation and turn.
func (c *Controller) Journal(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]generic.Transaction, error) {
	if c.ledger == nil {
		return nil, nil
	}
	return c.ledger.TransactionsForTurn(ctx, nation, turn)
}

// =============================================================================
// PHASE TRANSITIONS
// =============================================================================

// Start prepares the first PlayerTurn: sync stock from the collaborators,
// credit the first turn's income and take the turn's save point. Safe to skip when pools are seeded by deposits.
func (c *Controller) Start(ctx context.Context) error {
	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PlayerTurn {
		return fmt.Errorf("start during %s: %w", c.phase, generic.ErrWrongPhase)
	}
	c.beginPlayerTurn(ctx)
	c.setPhase(PlayerTurn)
	return nil
}

// EndTurn is the player's end-turn command: PlayerTurn → Processing. Every
// nation is finalized before it returns. With AutoAdvance it continues
// through EnemyTurn to the next PlayerTurn.
func (c *Controller) EndTurn(ctx context.Context) error {
	c.advanceMu.Lock()
	err := c.endTurn(ctx)
	if err == nil && c.opts.AutoAdvance {
		err = c.advance(ctx)
		if err == nil {
			err = c.advance(ctx)
		}
	}
	c.advanceMu.Unlock()
	return err
}

// Advance performs the next automatic transition. It is a no-op during
// PlayerTurn, which only the end-turn command leaves.
func (c *Controller) Advance(ctx context.Context) error {
	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()
	return c.advance(ctx)
}

// RunTurn ends the turn and advances until the next PlayerTurn.
func (c *Controller) RunTurn(ctx context.Context) error {
	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()
	if err := c.endTurn(ctx); err != nil {
		return err
	}
	for c.Phase() != PlayerTurn {
		if err := c.advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) endTurn(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PlayerTurn {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("end turn during %s: %w", phase, generic.ErrWrongPhase)
	}
	c.setPhase(Processing)
	results := c.finalize(c.sorted(func(*allocation.Nation) bool { return true }))
	for _, r := range results {
		c.pending = append(c.pending, r.Handoffs...)
	}
	c.mu.Unlock()

	return c.persist(ctx, results)
}

func (c *Controller) advance(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case Processing:
		pending := c.pending
		c.pending = nil
		ai := c.sorted(func(n *allocation.Nation) bool { return n.AI })
		c.setPhase(EnemyTurn)
		turn := c.turn
		for _, n := range ai {
			n.Reset(c.opts.CarryOverRequested)
			if c.opts.CarryOverRequested {
				n.RecomputeAll()
			}
		}
		c.mu.Unlock()

		err := c.deliver(ctx, pending)
		if c.planner != nil {
			for _, n := range ai {
				if perr := c.planner.Plan(ctx, turn, n); perr != nil {
					c.log.Warn("ai planner failed", "nation", string(n.ID), "error", perr)
				}
			}
		}
		return err

	case EnemyTurn:
		ai := c.sorted(func(n *allocation.Nation) bool { return n.AI })
		results := c.finalize(ai)
		c.turn++
		c.beginPlayerTurn(ctx)
		c.setPhase(PlayerTurn)
		c.mu.Unlock()

		var handoffs []allocation.Handoff
		for _, r := range results {
			handoffs = append(handoffs, r.Handoffs...)
		}
		return errors.Join(c.persist(ctx, results), c.deliver(ctx, handoffs))

	default:
		c.mu.Unlock()
		return nil
	}
}

// finalize runs whole-nation batches in parallel. Nation.Finalize never
// fails; violations come back in the results and were already logged.
// Caller holds c.mu.
func (c *Controller) finalize(nations []*allocation.Nation) []allocation.FinalizeResult {
	results := make([]allocation.FinalizeResult, len(nations))
	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, n := range nations {
		i, n := i, n
		g.Go(func() error {
			results[i] = n.Finalize()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if len(r.Violations) > 0 {
			c.log.Warn("finalize clamped invariant violations",
				"nation", string(r.NationID), "turn", int(r.Turn), "count", len(r.Violations))
		}
		if n, ok := c.nations[r.NationID]; ok && n.HasLiveReservations() {
			c.log.Error("reservations survived finalize", "nation", string(r.NationID))
			metrics.RecordInvariantViolation("live_after_finalize")
		}
	}
	return results
}

// beginPlayerTurn resets every nation, syncs stock, credits the turn's
// income, saves the turn's save point and, with carry-over, re-reserves human
// nations' requests. Caller holds c.mu.
func (c *Controller) beginPlayerTurn(ctx context.Context) {
	for _, n := range c.sorted(func(*allocation.Nation) bool { return true }) {
		n.Reset(c.opts.CarryOverRequested)
		n.BeginTurn(c.turn)
		for _, err := range n.Sync(c.stockpile, c.treasury) {
			c.log.Warn("stock sync failed", "nation", string(n.ID), "error", err)
		}
		if err := c.creditIncome(ctx, n); err != nil {
			c.log.Error("income failed", "nation", string(n.ID), "turn", int(c.turn), "error", err)
		}
		if c.savepoints != nil {
			sp, err := n.SavePoint()
			if err == nil {
				err = c.savepoints.SaveSavePoint(ctx, sp)
			}
			if err != nil {
				c.log.Error("save point failed", "nation", string(n.ID), "turn", int(c.turn), "error", err)
			}
		}
		if c.opts.CarryOverRequested && !n.AI {
			n.RecomputeAll()
		}
	}
}

func (c *Controller) persist(ctx context.Context, results []allocation.FinalizeResult) error {
	var errs []error
	for _, r := range results {
		if c.ledger != nil && len(r.Journal) > 0 {
			if err := c.ledger.AppendBatch(ctx, r.Journal); err != nil {
				if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
					c.log.Warn("finalize journal already recorded", "nation", string(r.NationID), "turn", int(r.Turn))
				} else {
					errs = append(errs, fmt.Errorf("journal %s turn %d: %w", r.NationID, r.Turn, err))
				}
			}
		}
		if c.handoffs != nil && len(r.Handoffs) > 0 {
			if err := c.handoffs.SaveHandoffs(ctx, r.Handoffs); err != nil {
				errs = append(errs, fmt.Errorf("handoffs %s turn %d: %w", r.NationID, r.Turn, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) deliver(ctx context.Context, handoffs []allocation.Handoff) error {
	var errs []error
	for _, h := range handoffs {
		if c.sink != nil {
			if err := c.sink.Deliver(ctx, h); err != nil {
				c.log.Error("handoff delivery failed", "nation", string(h.NationID), "category", string(h.CategoryID), "error", err)
				errs = append(errs, err)
			}
		}
		if c.settle {
			if err := c.settleHandoff(ctx, h); err != nil {
				c.log.Error("settlement failed", "nation", string(h.NationID), "category", string(h.CategoryID), "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// HELPERS
// =============================================================================

// setPhase flips the phase. Caller holds c.mu.
func (c *Controller) setPhase(p Phase) {
	c.phase = p
	metrics.RecordPhase(string(p), int(c.turn))
	c.log.Info("phase changed", "phase", string(p), "turn", int(c.turn))
}

func (c *Controller) mutable(n *allocation.Nation) bool {
	switch c.phase {
	case PlayerTurn:
		return !n.AI
	case EnemyTurn:
		return n.AI
	}
	return false
}

func (c *Controller) nation(id generic.NationID) (*allocation.Nation, error) {
	n, ok := c.nations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrNationNotFound, id)
	}
	return n, nil
}

func (c *Controller) sorted(keep func(*allocation.Nation) bool) []*allocation.Nation {
	out := make([]*allocation.Nation, 0, len(c.nations))
	for _, n := range c.nations {
		if keep(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
