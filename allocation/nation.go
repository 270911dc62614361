package allocation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/metrics"
)

// =============================================================================
// NATION - Single writer for one account and its categories
// =============================================================================

// Nation owns one account and its categories. Every exported method takes
// the nation's lock, so a nation is mutated by one goroutine at a time while
// different nations proceed in parallel.
type Nation struct {
	ID   generic.NationID
	Name string
	AI   bool

	mu         sync.Mutex
	account    *generic.Account
	categories map[generic.CategoryID]*Category
	turn       generic.Turn
	capacities Capacities
	prices     PriceOracle
	log        *slog.Logger
	clock      func() time.Time
}

type NationOption func(*Nation)

func WithCapacities(c Capacities) NationOption { return func(n *Nation) { n.capacities = c } }
func WithPrices(p PriceOracle) NationOption    { return func(n *Nation) { n.prices = p } }
func WithLogger(l *slog.Logger) NationOption   { return func(n *Nation) { n.log = l } }
func WithName(name string) NationOption        { return func(n *Nation) { n.Name = name } }
func WithClock(now func() time.Time) NationOption {
	return func(n *Nation) { n.clock = now }
}

// AsAI marks the nation as planned by the AI during EnemyTurn.
func AsAI() NationOption { return func(n *Nation) { n.AI = true } }

func NewNation(id generic.NationID, opts ...NationOption) *Nation {
	n := &Nation{
		ID:         id,
		Name:       string(id),
		categories: make(map[generic.CategoryID]*Category),
		turn:       1,
		capacities: NewStaticCapacities(),
		log:        slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.capacities == nil {
		n.capacities = NewStaticCapacities()
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	n.log = n.log.With("nation", string(id))
	n.account = generic.NewAccount(id, n.log)
	return n
}

// AddCategory registers a category. IDs are unique per nation.
func (n *Nation) AddCategory(c *Category) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c.ID == "" {
		return &generic.InvalidRequestError{Field: "category", Value: "", Reason: "id is required"}
	}
	if _, exists := n.categories[c.ID]; exists {
		return &generic.InvalidRequestError{Field: "category", Value: string(c.ID), Reason: "already registered"}
	}
	n.categories[c.ID] = c
	return nil
}

func (n *Nation) Turn() generic.Turn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.turn
}

// =============================================================================
// READS
// =============================================================================

func (n *Nation) Status(id generic.CategoryID) (Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.category(id)
	if err != nil {
		return Status{}, err
	}
	return c.status(n.ID), nil
}

// Statuses lists every category in finalize order.
func (n *Nation) Statuses() []Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	ordered := n.ordered()
	out := make([]Status, len(ordered))
	for i, c := range ordered {
		out[i] = c.status(n.ID)
	}
	return out
}

func (n *Nation) Allocated(id generic.CategoryID) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.category(id)
	if err != nil {
		return 0, err
	}
	return c.allocated, nil
}

// Available returns what is still unreserved of a resource, as seen by a
// category. Pure read; it never creates a pool.
func (n *Nation) Available(id generic.CategoryID, resource generic.ResourceKind) (generic.Amount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.category(id); err != nil {
		return generic.Amount{}, err
	}
	if p, ok := n.account.LookupPool(resource.ResourceID()); ok {
		return p.Available(), nil
	}
	return generic.NewAmountFromInt(0, resource.ResourceUnit()), nil
}

// Pool returns the view of one pool; a pool that was never touched reads as empty.
func (n *Nation) Pool(resource generic.ResourceKind) generic.PoolView {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.account.LookupPool(resource.ResourceID()); ok {
		return p.View()
	}
	zero := generic.NewAmountFromInt(0, resource.ResourceUnit())
	return generic.PoolView{Resource: resource, OnHand: zero, Reserved: zero, Available: zero}
}

// Pools lists every pool ordered by resource ID.
func (n *Nation) Pools() []generic.PoolView {
	n.mu.Lock()
	defer n.mu.Unlock()
	pools := n.account.Pools()
	out := make([]generic.PoolView, len(pools))
	for i, p := range pools {
		out[i] = p.View()
	}
	return out
}

// Reservations lists the live reservations of one pool.
func (n *Nation) Reservations(resource generic.ResourceKind) []generic.Reservation {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.account.LookupPool(resource.ResourceID()); ok {
		return p.Reservations()
	}
	return nil
}

func (n *Nation) HasLiveReservations() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.account.HasLiveReservations()
}

// =============================================================================
// WRITES
// =============================================================================

// SetRequested records the player's (or AI's) desired unit count and
// immediately re-reserves to match.
func (n *Nation) SetRequested(id generic.CategoryID, amount float64) (Status, error) {
	units, err := ValidateRequested(amount)
	if err != nil {
		return Status{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.category(id)
	if err != nil {
		return Status{}, err
	}
	if c.finalized {
		return c.status(n.ID), fmt.Errorf("set requested on %s: already finalized for turn %d: %w", id, n.turn, generic.ErrWrongPhase)
	}
	c.requested = units
	n.recompute(c)
	return c.status(n.ID), nil
}

// Preview computes what a request would be allocated without reserving.
func (n *Nation) Preview(id generic.CategoryID, amount float64) (Status, error) {
	units, err := ValidateRequested(amount)
	if err != nil {
		return Status{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.category(id)
	if err != nil {
		return Status{}, err
	}
	st := c.status(n.ID)
	st.Requested = units
	st.Caps = n.capsFor(c, units)
	st.Allocated = min(units, st.Caps.Limit())
	st.Holds = nil
	return st, nil
}

// Recompute re-runs the allocation rule for one category, e.g. after a
// capacity changed.
func (n *Nation) Recompute(id generic.CategoryID) (Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.category(id)
	if err != nil {
		return Status{}, err
	}
	if !c.finalized {
		n.recompute(c)
	}
	return c.status(n.ID), nil
}

// RecomputeAll re-runs every open category in finalize order.
func (n *Nation) RecomputeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.ordered() {
		if !c.finalized {
			n.recompute(c)
		}
	}
}

// Deposit adds stock that arrived from outside the engine.
func (n *Nation) Deposit(resource generic.ResourceKind, amount generic.Amount) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.account.Deposit(resource, amount)
}

// =============================================================================
// ALLOCATION RULE
// =============================================================================

// hardCapTable holds the per-variant hard ceiling. Unlimited means the kind
// imposes none.
var hardCapTable = map[Kind]func(n *Nation, c *Category) int64{
	Recruitment: func(n *Nation, _ *Category) int64 {
		return economy.RecruitmentCapacity(n.capacities.Provinces(n.ID), n.capacities.RecruitmentUpgraded(n.ID))
	},
	Training: func(n *Nation, c *Category) int64 {
		if !c.Params.LimitToWorkers {
			return Unlimited
		}
		return n.capacities.Workers(n.ID, c.Params.Skill)
	},
	Production: func(n *Nation, c *Category) int64 {
		capacity := n.capacities.BuildingCapacity(n.ID, c.Params.Building)
		for _, other := range n.categories {
			if other.ID != c.ID && other.Kind == Production && other.Params.Building == c.Params.Building {
				capacity -= other.allocated
			}
		}
		return capacity
	},
	TradeOrder: func(n *Nation, c *Category) int64 {
		limit, ok := n.capacities.TradeCapacity(n.ID)
		if !ok {
			return Unlimited
		}
		for _, other := range n.categories {
			if other.ID != c.ID && other.Kind == TradeOrder {
				limit -= other.allocated
			}
		}
		return limit
	},
}

func (n *Nation) hardCap(c *Category) int64 {
	hard := Unlimited
	if f, ok := hardCapTable[c.Kind]; ok {
		hard = f(n, c)
	}
	if c.Params.MaxUnits != nil {
		hard = min(hard, *c.Params.MaxUnits)
	}
	return max(hard, 0)
}

func (n *Nation) cashPerUnit(c *Category) decimal.Decimal {
	if c.Kind == TradeOrder && c.Params.Direction == Buy && n.prices != nil {
		if price, ok := n.prices.Price(c.Params.Good); ok {
			return price
		}
	}
	return c.Params.CashPerUnit
}

// unitCost is everything one unit reserves: goods, labor and cash.
func (n *Nation) unitCost(c *Category) generic.Cost {
	cost := append(generic.Cost{}, c.Params.Cost...)
	if price := n.cashPerUnit(c); price.IsPositive() {
		cost = append(cost, generic.CostLine{Resource: economy.Cash, Amount: generic.Amount{Value: price, Unit: generic.UnitCash}})
	}
	return cost.Normalize()
}

// capsFor evaluates the three caps. A category's own holds count as
// available to it, so recomputing never fights with itself.
func (n *Nation) capsFor(c *Category, requested int64) Caps {
	caps := Caps{Hard: n.hardCap(c), Resource: Unlimited, Treasury: Unlimited}
	resourceBinding := ""

	goods := c.Params.Cost.Normalize()
	for _, line := range goods {
		usable := n.usable(c, line.Resource)
		if u := usable.Units(line.Amount); u < caps.Resource {
			caps.Resource = u
			resourceBinding = "resource:" + line.Resource.ResourceID()
		}
	}

	price := n.cashPerUnit(c)
	if price.IsPositive() {
		usable := n.usable(c, economy.Cash)
		caps.Treasury = usable.Units(generic.Amount{Value: price, Unit: generic.UnitCash})
	}

	if len(goods) == 0 && !price.IsPositive() {
		caps.Resource = 0
		resourceBinding = "no_inputs"
	}
	caps.Resource = max(caps.Resource, 0)
	caps.Treasury = max(caps.Treasury, 0)

	if limit := caps.Limit(); limit < requested {
		switch limit {
		case caps.Hard:
			caps.Binding = "hard"
		case caps.Resource:
			caps.Binding = resourceBinding
		default:
			caps.Binding = "treasury"
		}
	}
	return caps
}

func (n *Nation) usable(c *Category, resource generic.ResourceKind) generic.Amount {
	p, ok := n.account.LookupPool(resource.ResourceID())
	if !ok {
		return generic.NewAmountFromInt(0, resource.ResourceUnit())
	}
	return p.Available().Add(p.HeldBy(c.ID))
}

// recompute applies allocated = min(requested, caps) by reserving new units
// one at a time or releasing the most recent ones. It never fails: a
// shortage saturates allocated, and invariant defects are logged.
// recompute re-reserves c and, when c gave units back, lets the open
// categories sharing its hard cap pick up the freed capacity. Siblings only
// gain headroom, so one pass settles.
func (n *Nation) recompute(c *Category) {
	if n.reconcile(c) == 0 {
		return
	}
	for _, other := range n.ordered() {
		if other != c && !other.finalized && other.allocated < other.requested && sharesHardCap(c, other) {
			n.reconcile(other)
		}
	}
}

// sharesHardCap reports whether a and b draw on one ceiling: a building's
// capacity, or the nation's trade capacity.
func sharesHardCap(a, b *Category) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Production:
		return a.Params.Building == b.Params.Building
	case TradeOrder:
		return true
	}
	return false
}

// reconcile moves c's holds to min(requested, caps) and returns how many
// units it released.
func (n *Nation) reconcile(c *Category) int {
	c.caps = n.capsFor(c, c.requested)
	target := max(min(c.requested, c.caps.Limit()), 0)
	held := int64(len(c.holds))
	released := 0

	switch {
	case target > held:
		ids, err := n.account.ReserveUnits(c.ID, n.unitCost(c), target-held, n.turn)
		c.holds = append(c.holds, ids...)
		if err != nil {
			var short *generic.InsufficientResourceError
			if errors.As(err, &short) {
				id := short.Resource.ResourceID()
				metrics.RecordShortfall(c.Kind.String(), id)
				if id == economy.Cash.ResourceID() {
					c.caps.Binding = "treasury"
				} else {
					c.caps.Binding = "resource:" + id
				}
			} else {
				n.violation(err)
			}
		}
	case target < held:
		for int64(len(c.holds)) > target {
			last := len(c.holds) - 1
			id := c.holds[last]
			c.holds = c.holds[:last]
			if err := n.account.ReleaseUnit(id); err != nil {
				n.violation(err)
			}
			released++
		}
		metrics.RecordRelease(c.Kind.String(), released)
	}

	c.allocated = int64(len(c.holds))
	metrics.RecordAllocation(string(n.ID), c.Kind.String(), c.requested, c.allocated)
	if c.allocated < c.requested {
		n.log.Debug("category partially allocated",
			"category", string(c.ID), "requested", c.requested, "allocated", c.allocated, "binding", c.caps.Binding)
	}
	return released
}

// =============================================================================
// TURN BOUNDARY
// =============================================================================

// Finalize commits every category in FinalizeOrder, emitting one handoff per
// category that delivered something and one journal entry per consumed
// resource of each unit. Calling it twice in a turn is a no-op the second time.
func (n *Nation) Finalize() FinalizeResult {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	res := FinalizeResult{NationID: n.ID, Turn: n.turn}
	now := n.clock()

	for _, c := range n.ordered() {
		if c.finalized {
			continue
		}
		h := Handoff{
			ID:         uuid.NewString(),
			NationID:   n.ID,
			Turn:       n.turn,
			CategoryID: c.ID,
			Kind:       c.Kind,
			Requested:  c.requested,
			Skill:      c.Params.Skill,
			Building:   c.Params.Building,
			Output:     c.Params.Output,
			Good:       c.Params.Good,
			Direction:  c.Params.Direction,
			CreatedAt:  now,
		}

		var consumedTotal generic.Cost
		for _, id := range c.holds {
			consumed, err := n.account.CommitUnit(id)
			if err != nil {
				n.violation(err)
				res.Violations = append(res.Violations, err)
			}
			if len(consumed) == 0 {
				continue
			}
			h.Quantity++
			consumedTotal = append(consumedTotal, consumed...)
			for _, line := range consumed {
				res.Journal = append(res.Journal, generic.Transaction{
					ID:             generic.TransactionID(uuid.NewString()),
					NationID:       n.ID,
					Resource:       line.Resource,
					Turn:           n.turn,
					Delta:          line.Amount.Neg(),
					Type:           generic.TxConsumption,
					CategoryID:     c.ID,
					ReservationID:  id,
					Reason:         "finalize " + c.Kind.String(),
					IdempotencyKey: generic.ConsumptionKey(n.ID, n.turn, c.ID, id, line.Resource),
					CreatedAt:      now,
				})
			}
		}
		h.Consumed = consumedTotal.Normalize()

		c.holds = nil
		c.allocated = h.Quantity
		c.finalized = true
		metrics.RecordCommit(c.Kind.String(), int(h.Quantity))

		if h.Quantity > 0 {
			res.Handoffs = append(res.Handoffs, h)
			metrics.RecordHandoff(c.Kind.String(), h.Quantity)
		}
	}

	if stray := n.account.ReleaseStray(); len(stray) > 0 {
		err := &generic.InvariantViolationError{
			NationID: n.ID, Code: "stray_after_finalize",
			Detail: fmt.Sprintf("released %d reservations no category owned", len(stray)),
		}
		n.violation(err)
		res.Violations = append(res.Violations, err)
	}
	for _, err := range n.account.CheckInvariants() {
		n.violation(err)
		res.Violations = append(res.Violations, err)
	}

	n.recordPools()
	metrics.RecordFinalize(string(n.ID), time.Since(start).Seconds())
	return res
}

// Reset reopens every category for a new round of planning: stray holds are
// released, allocated is zeroed, and requested is zeroed unless carryOver.
// Reset is idempotent.
func (n *Nation) Reset(carryOver bool) []error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for _, c := range n.ordered() {
		if len(c.holds) > 0 {
			err := &generic.InvariantViolationError{
				NationID: n.ID, Code: "stray_at_reset",
				Detail: fmt.Sprintf("category %s still held %d units", c.ID, len(c.holds)),
			}
			n.violation(err)
			errs = append(errs, err)
			for i := len(c.holds) - 1; i >= 0; i-- {
				if rerr := n.account.ReleaseUnit(c.holds[i]); rerr != nil {
					n.violation(rerr)
				}
			}
		}
		c.holds = nil
		c.allocated = 0
		c.finalized = false
		c.caps = Caps{}
		if !carryOver {
			c.requested = 0
		}
	}
	return errs
}

// BeginTurn moves the nation to a new turn and forgets last turn's
// released and committed reservation IDs.
func (n *Nation) BeginTurn(turn generic.Turn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.account.BeginTurn()
	n.turn = turn
}

// Sync refreshes on_hand from the stockpile and the treasury. Either may be
// nil, in which case pools keep their own figures.
func (n *Nation) Sync(stock Stockpile, treasury Treasury) []error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	if stock != nil {
		kinds := make(map[string]generic.ResourceKind)
		for _, r := range generic.ListResources() {
			kinds[r.ResourceID()] = r
		}
		for _, p := range n.account.Pools() {
			kinds[p.Resource().ResourceID()] = p.Resource()
		}
		ids := make([]string, 0, len(kinds))
		for id := range kinds {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			r := kinds[id]
			if treasury != nil && id == economy.Cash.ResourceID() {
				continue
			}
			amt, ok := stock.Quantity(n.ID, r)
			if !ok {
				continue
			}
			if err := n.account.Sync(r, amt); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if treasury != nil {
		cash := generic.Amount{Value: treasury.Cash(n.ID), Unit: generic.UnitCash}
		if err := n.account.Sync(economy.Cash, cash); err != nil {
			errs = append(errs, err)
		}
	}
	n.recordPools()
	return errs
}

// SavePoint snapshots on-hand stock and requested counts. Refused while any
// pool still has reservations.
func (n *Nation) SavePoint() (generic.SavePoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sp, err := n.account.SavePoint(n.turn, n.clock())
	if err != nil {
		return generic.SavePoint{}, err
	}
	for id, c := range n.categories {
		sp.Requested[id] = c.requested
	}
	return sp, nil
}

// Restore loads on-hand stock and requested counts from a save point.
// Categories are left reset; call RecomputeAll to re-reserve.
func (n *Nation) Restore(sp generic.SavePoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.account.Restore(sp); err != nil {
		return err
	}
	n.turn = sp.Turn
	for id, c := range n.categories {
		c.holds = nil
		c.allocated = 0
		c.finalized = false
		c.requested = sp.Requested[id]
	}
	return nil
}

// CheckInvariants verifies every pool and the per-category bounds.
func (n *Nation) CheckInvariants() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	errs := n.account.CheckInvariants()
	for _, c := range n.ordered() {
		if c.allocated < 0 || c.allocated > c.requested {
			errs = append(errs, &generic.InvariantViolationError{
				NationID: n.ID, Code: "allocated_out_of_bounds",
				Detail: fmt.Sprintf("category %s allocated %d requested %d", c.ID, c.allocated, c.requested),
			})
		}
	}
	return errs
}

// =============================================================================
// HELPERS
// =============================================================================

func (n *Nation) category(id generic.CategoryID) (*Category, error) {
	c, ok := n.categories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", generic.ErrCategoryNotFound, n.ID, id)
	}
	return c, nil
}

// ordered returns categories in finalize order, ties broken by ID.
func (n *Nation) ordered() []*Category {
	out := make([]*Category, 0, len(n.categories))
	for _, c := range n.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind.Rank() != out[j].Kind.Rank() {
			return out[i].Kind.Rank() < out[j].Kind.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// violation logs and counts an invariant defect. Never panics.
func (n *Nation) violation(err error) {
	code := "other"
	var inv *generic.InvariantViolationError
	switch {
	case errors.As(err, &inv):
		code = inv.Code
	case errors.Is(err, generic.ErrUnknownReservation):
		code = "unknown_reservation"
	}
	metrics.RecordInvariantViolation(code)
	n.log.Warn("ledger invariant violation", "code", code, "error", err)
}

func (n *Nation) recordPools() {
	for _, p := range n.account.Pools() {
		onHand, _ := p.OnHand().Value.Float64()
		reserved, _ := p.Reserved().Value.Float64()
		metrics.RecordPool(string(n.ID), p.Resource().ResourceID(), onHand, reserved)
	}
}
