// Package economy defines the game's resource vocabulary: goods, cash and
// labor, the buildings that turn goods into other goods, and worker skills.
// It registers every resource kind with the generic registry.
package economy

import (
	"fmt"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// GOODS
// =============================================================================

// Good is a physical commodity held in a nation's stockpile.
// Implements generic.ResourceKind.
type Good string

func (g Good) ResourceID() string         { return string(g) }
func (g Good) ResourceDomain() string     { return "goods" }
func (g Good) ResourceUnit() generic.Unit { return generic.UnitGoods }

// Compile-time check that Good implements generic.ResourceKind
var _ generic.ResourceKind = Good("")

// Raw resources
const (
	Grain     Good = "grain"
	Fruit     Good = "fruit"
	Livestock Good = "livestock"
	Fish      Good = "fish"
	Cotton    Good = "cotton"
	Wool      Good = "wool"
	Timber    Good = "timber"
	Coal      Good = "coal"
	Iron      Good = "iron"
	Gold      Good = "gold"
	Gems      Good = "gems"
	Oil       Good = "oil"
)

// Processed goods
const (
	Fabric     Good = "fabric"
	Paper      Good = "paper"
	Lumber     Good = "lumber"
	Steel      Good = "steel"
	Fuel       Good = "fuel"
	Clothing   Good = "clothing"
	Furniture  Good = "furniture"
	Hardware   Good = "hardware"
	Armaments  Good = "armaments"
	CannedFood Good = "canned_food"
	Horses     Good = "horses"
	Transport  Good = "transport"
)

// AllGoods returns every good in declaration order.
func AllGoods() []Good {
	return []Good{
		Grain, Fruit, Livestock, Fish, Cotton, Wool, Timber, Coal, Iron, Gold, Gems, Oil,
		Fabric, Paper, Lumber, Steel, Fuel, Clothing, Furniture, Hardware, Armaments,
		CannedFood, Horses, Transport,
	}
}

// ParseGood resolves a good by ID.
func ParseGood(id string) (Good, error) {
	for _, g := range AllGoods() {
		if string(g) == id {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: good %q", generic.ErrResourceNotFound, id)
}

// =============================================================================
// CASH AND LABOR
// =============================================================================

// Fund is a non-good resource: treasury cash or workforce labor points.
type Fund string

func (f Fund) ResourceID() string     { return string(f) }
func (f Fund) ResourceDomain() string { return "funds" }
func (f Fund) ResourceUnit() generic.Unit {
	if f == Labor {
		return generic.UnitLabor
	}
	return generic.UnitCash
}

var _ generic.ResourceKind = Fund("")

const (
	Cash  Fund = "cash"
	Labor Fund = "labor"
)

// ParseResource resolves any economy resource: a good, cash or labor.
func ParseResource(id string) (generic.ResourceKind, error) {
	switch Fund(id) {
	case Cash, Labor:
		return Fund(id), nil
	}
	g, err := ParseGood(id)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultTreasury is the starting cash of a new nation.
const DefaultTreasury = 50000

// Register all economy resources with the generic registry
func init() {
	for _, g := range AllGoods() {
		generic.RegisterResource(g)
	}
	generic.RegisterResource(Cash)
	generic.RegisterResource(Labor)
}

// =============================================================================
// WORKERS
// =============================================================================

// WorkerSkill is a workforce tier. Training moves a worker one tier up.
type WorkerSkill string

const (
	Untrained WorkerSkill = "untrained"
	Trained   WorkerSkill = "trained"
	Expert    WorkerSkill = "expert"
)

// LaborPoints is how much labor one worker of this skill contributes per turn.
func (s WorkerSkill) LaborPoints() int64 {
	switch s {
	case Trained:
		return 2
	case Expert:
		return 4
	default:
		return 1
	}
}

// Next returns the tier training leads to, and false for the top tier.
func (s WorkerSkill) Next() (WorkerSkill, bool) {
	switch s {
	case Untrained:
		return Trained, true
	case Trained:
		return Expert, true
	default:
		return s, false
	}
}

// TrainableSkills lists the tiers a training category can start from.
func TrainableSkills() []WorkerSkill { return []WorkerSkill{Untrained, Trained} }

func ParseSkill(s string) (WorkerSkill, error) {
	switch WorkerSkill(s) {
	case Untrained, Trained, Expert:
		return WorkerSkill(s), nil
	}
	return "", fmt.Errorf("%w: unknown worker skill %q", generic.ErrInvalidRequest, s)
}
