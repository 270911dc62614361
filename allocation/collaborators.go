package allocation

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// COLLABORATORS - Read-only inputs owned by the rest of the game
// =============================================================================

// Stockpile is the authoritative stock figure, read at the start of each
// PlayerTurn. Transport connectivity is folded in here: a good that cannot
// reach the capital is simply not reported yet.
type Stockpile interface {
	// Quantity returns the stock on hand and whether the stockpile tracks it.
	Quantity(nation generic.NationID, resource generic.ResourceKind) (generic.Amount, bool)
}

// Treasury reports a nation's cash.
type Treasury interface {
	Cash(nation generic.NationID) decimal.Decimal
}

// Capacities supplies the hard caps that come from the map and technology.
type Capacities interface {
	Provinces(nation generic.NationID) int64
	RecruitmentUpgraded(nation generic.NationID) bool
	BuildingCapacity(nation generic.NationID, building string) int64
	Workers(nation generic.NationID, skill economy.WorkerSkill) int64
	// TradeCapacity returns the per-turn trade limit and false when unlimited.
	TradeCapacity(nation generic.NationID) (int64, bool)
}

// PriceOracle quotes market prices for buy orders.
type PriceOracle interface {
	Price(good economy.Good) (decimal.Decimal, bool)
}

// =============================================================================
// STATIC IMPLEMENTATIONS - Rulesets, tests and the simulator
// =============================================================================

// NationCapacity is the capacity profile of one nation.
type NationCapacity struct {
	Provinces           int64
	RecruitmentUpgraded bool
	Buildings           map[string]int64
	Workers             map[economy.WorkerSkill]int64
	TradeLimit          *int64
}

// StaticCapacities is a Capacities backed by a map. Safe for concurrent use.
type StaticCapacities struct {
	mu      sync.RWMutex
	nations map[generic.NationID]NationCapacity
}

func NewStaticCapacities() *StaticCapacities {
	return &StaticCapacities{nations: make(map[generic.NationID]NationCapacity)}
}

func (s *StaticCapacities) Set(nation generic.NationID, c NationCapacity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nations[nation] = c
}

func (s *StaticCapacities) Get(nation generic.NationID) NationCapacity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nations[nation]
}

// Update applies fn to a copy of the nation's profile and stores the result.
func (s *StaticCapacities) Update(nation generic.NationID, fn func(*NationCapacity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.nations[nation]
	fn(&c)
	s.nations[nation] = c
}

func (s *StaticCapacities) Provinces(nation generic.NationID) int64 {
	return s.Get(nation).Provinces
}

func (s *StaticCapacities) RecruitmentUpgraded(nation generic.NationID) bool {
	return s.Get(nation).RecruitmentUpgraded
}

func (s *StaticCapacities) BuildingCapacity(nation generic.NationID, building string) int64 {
	return s.Get(nation).Buildings[building]
}

func (s *StaticCapacities) Workers(nation generic.NationID, skill economy.WorkerSkill) int64 {
	return s.Get(nation).Workers[skill]
}

func (s *StaticCapacities) TradeCapacity(nation generic.NationID) (int64, bool) {
	limit := s.Get(nation).TradeLimit
	if limit == nil {
		return 0, false
	}
	return *limit, true
}

// StaticStockpile is a Stockpile backed by a map.
type StaticStockpile struct {
	mu    sync.RWMutex
	stock map[generic.NationID]map[string]generic.Amount
}

func NewStaticStockpile() *StaticStockpile {
	return &StaticStockpile{stock: make(map[generic.NationID]map[string]generic.Amount)}
}

func (s *StaticStockpile) Set(nation generic.NationID, resource generic.ResourceKind, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stock[nation] == nil {
		s.stock[nation] = make(map[string]generic.Amount)
	}
	s.stock[nation][resource.ResourceID()] = generic.NewAmountFromInt(qty, resource.ResourceUnit())
}

func (s *StaticStockpile) Quantity(nation generic.NationID, resource generic.ResourceKind) (generic.Amount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amt, ok := s.stock[nation][resource.ResourceID()]
	return amt, ok
}

// StaticTreasury is a Treasury backed by a map.
type StaticTreasury struct {
	mu   sync.RWMutex
	cash map[generic.NationID]decimal.Decimal
}

func NewStaticTreasury() *StaticTreasury {
	return &StaticTreasury{cash: make(map[generic.NationID]decimal.Decimal)}
}

func (s *StaticTreasury) Set(nation generic.NationID, cash decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash[nation] = cash
}

func (s *StaticTreasury) Cash(nation generic.NationID) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cash[nation]
}

// StaticPrices is a PriceOracle backed by a map.
type StaticPrices map[economy.Good]decimal.Decimal

func (p StaticPrices) Price(good economy.Good) (decimal.Decimal, bool) {
	price, ok := p[good]
	return price, ok
}
