package economy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// BUILDINGS
// =============================================================================

// BuildingKind is a production facility type. Each building has a per-turn
// capacity shared by all the outputs it can make.
type BuildingKind string

const (
	TextileMill          BuildingKind = "textile_mill"
	LumberMill           BuildingKind = "lumber_mill"
	SteelMill            BuildingKind = "steel_mill"
	FoodProcessingCenter BuildingKind = "food_processing_center"
	ClothingFactory      BuildingKind = "clothing_factory"
	FurnitureFactory     BuildingKind = "furniture_factory"
	MetalWorks           BuildingKind = "metal_works"
	Refinery             BuildingKind = "refinery"
	Railyard             BuildingKind = "railyard"
)

// AllBuildings lists every building kind.
func AllBuildings() []BuildingKind {
	return []BuildingKind{
		TextileMill, LumberMill, SteelMill, FoodProcessingCenter, ClothingFactory,
		FurnitureFactory, MetalWorks, Refinery, Railyard,
	}
}

func ParseBuilding(s string) (BuildingKind, error) {
	for _, b := range AllBuildings() {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: unknown building kind %q", generic.ErrInvalidRequest, s)
}

// Input is one line of a recipe: PerUnit of Good for each unit produced.
type Input struct {
	Good    Good
	PerUnit int64
}

// Recipe describes how a building makes one unit of output.
type Recipe struct {
	Building BuildingKind
	Output   Good
	Variant  string // alternative input set, "" for the default
	Inputs   []Input
	Labor    int64
}

var recipes = []Recipe{
	{Building: TextileMill, Output: Fabric, Inputs: []Input{{Cotton, 2}}, Labor: 1},
	{Building: TextileMill, Output: Fabric, Variant: "wool", Inputs: []Input{{Wool, 2}}, Labor: 1},
	{Building: LumberMill, Output: Lumber, Inputs: []Input{{Timber, 2}}, Labor: 1},
	{Building: LumberMill, Output: Paper, Inputs: []Input{{Timber, 2}}, Labor: 1},
	{Building: SteelMill, Output: Steel, Inputs: []Input{{Iron, 1}, {Coal, 1}}, Labor: 1},
	{Building: FoodProcessingCenter, Output: CannedFood, Inputs: []Input{{Grain, 2}, {Fruit, 1}, {Livestock, 1}}, Labor: 1},
	{Building: FoodProcessingCenter, Output: CannedFood, Variant: "fish", Inputs: []Input{{Grain, 2}, {Fruit, 1}, {Fish, 1}}, Labor: 1},
	{Building: ClothingFactory, Output: Clothing, Inputs: []Input{{Fabric, 2}}, Labor: 1},
	{Building: FurnitureFactory, Output: Furniture, Inputs: []Input{{Lumber, 2}}, Labor: 1},
	{Building: MetalWorks, Output: Hardware, Inputs: []Input{{Steel, 2}}, Labor: 1},
	{Building: MetalWorks, Output: Armaments, Inputs: []Input{{Steel, 2}}, Labor: 1},
	{Building: Refinery, Output: Fuel, Inputs: []Input{{Oil, 2}}, Labor: 1},
	{Building: Railyard, Output: Transport, Inputs: []Input{{Steel, 1}, {Lumber, 1}}, Labor: 1},
}

// Recipes returns every known recipe.
func Recipes() []Recipe {
	out := make([]Recipe, len(recipes))
	copy(out, recipes)
	return out
}

// RecipeFor finds the recipe for a building's output and input variant.
func RecipeFor(building BuildingKind, output Good, variant string) (Recipe, error) {
	for _, r := range recipes {
		if r.Building == building && r.Output == output && r.Variant == variant {
			return r, nil
		}
	}
	return Recipe{}, fmt.Errorf("%w: no recipe for %s -> %s (variant %q)",
		generic.ErrInvalidRequest, building, output, variant)
}

// Outputs lists the distinct goods a building can make.
func Outputs(building BuildingKind) []Good {
	var out []Good
	seen := make(map[Good]bool)
	for _, r := range recipes {
		if r.Building == building && !seen[r.Output] {
			seen[r.Output] = true
			out = append(out, r.Output)
		}
	}
	return out
}

// Cost converts the recipe into a per-unit reservation cost, labor included.
func (r Recipe) Cost() generic.Cost {
	cost := make(generic.Cost, 0, len(r.Inputs)+1)
	for _, in := range r.Inputs {
		cost = append(cost, generic.CostLine{Resource: in.Good, Amount: generic.NewAmountFromInt(in.PerUnit, generic.UnitGoods)})
	}
	if r.Labor > 0 {
		cost = append(cost, generic.CostLine{Resource: Labor, Amount: generic.NewAmountFromInt(r.Labor, generic.UnitLabor)})
	}
	return cost
}

// =============================================================================
// RECRUITMENT AND TRAINING
// =============================================================================

// TrainingCashCost is what training one worker costs the treasury.
const TrainingCashCost = 100

// RecruitmentCost is one new worker: a can of food, clothing and furniture.
func RecruitmentCost() generic.Cost {
	one := generic.NewAmountFromInt(1, generic.UnitGoods)
	return generic.Cost{
		{Resource: CannedFood, Amount: one},
		{Resource: Clothing, Amount: one},
		{Resource: Furniture, Amount: one},
	}
}

// TrainingCost is the goods part of training one worker. The cash part is
// charged through the treasury cap.
func TrainingCost() generic.Cost {
	return generic.Cost{{Resource: Paper, Amount: generic.NewAmountFromInt(1, generic.UnitGoods)}}
}

// TrainingCash is TrainingCashCost as a decimal.
func TrainingCash() decimal.Decimal { return decimal.NewFromInt(TrainingCashCost) }

// RecruitmentCapacity is the hard cap on recruits per turn: one per four
// provinces, one per three once the upgrade is researched.
func RecruitmentCapacity(provinces int64, upgraded bool) int64 {
	if provinces <= 0 {
		return 0
	}
	if upgraded {
		return provinces / 3
	}
	return provinces / 4
}
