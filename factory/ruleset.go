/*
Package factory builds nations and their categories from ruleset documents.

PURPOSE:
  Converts a ruleset (JSON or YAML) into allocation.Nation values with their
  categories, capacity profiles, opening stock and per-turn income. This lets
  scenario designers tune a game without code changes.

DOCUMENT SHAPE:
  name: default
  carry_over_requested: false
  prices: {coal: 12}
  nations:
    - id: player
      provinces: 12
      buildings: [{id: mill-1, kind: lumber_mill, capacity: 4}]
      workers: {untrained: 10}
      stock: {canned_food: 5, cash: 1000, labor: 20}
      income: {labor: 20}
      categories:
        - {kind: recruitment}
        - {kind: training, skill: untrained}
        - {kind: production, building: mill-1, output: lumber}
        - {kind: trade_order, good: coal, direction: sell}
    - id: rival
      ai: true
      plan: {recruitment: 2}

VALIDATION:
  The document is checked against ruleset.schema.json first, so structural
  errors (unknown keys, negative capacities) are reported with a JSON
  pointer. Domain errors (unknown goods, missing recipes) come from Build.

USAGE:
  rs, err := factory.Parse(raw)
  built, err := rs.Build(logger)
  err = built.Apply(ctx, ctrl)

SEE ALSO:
  - presets.go: The default ruleset
  - allocation/category.go: Category constructors
*/
package factory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/turn"
)

//go:embed ruleset.schema.json
var schemaJSON []byte

const schemaURL = "https://schemas.allocation-engine.dev/ruleset.schema.json"

var rulesetSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile(schemaURL)
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// RulesetJSON is the document form of a ruleset.
type RulesetJSON struct {
	Name               string             `json:"name"`
	CarryOverRequested bool               `json:"carry_over_requested,omitempty"`
	Prices             map[string]float64 `json:"prices,omitempty"`
	Nations            []NationJSON       `json:"nations"`
}

// NationJSON describes one nation.
type NationJSON struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name,omitempty"`
	AI                  bool               `json:"ai,omitempty"`
	Provinces           int64              `json:"provinces,omitempty"`
	RecruitmentUpgraded bool               `json:"recruitment_upgraded,omitempty"`
	TradeLimit          *int64             `json:"trade_limit,omitempty"`
	Buildings           []BuildingJSON     `json:"buildings,omitempty"`
	Workers             map[string]int64   `json:"workers,omitempty"`
	Stock               map[string]float64 `json:"stock,omitempty"`
	Income              map[string]float64 `json:"income,omitempty"`
	Plan                map[string]float64 `json:"plan,omitempty"`
	Categories          []CategoryJSON     `json:"categories,omitempty"`
}

// BuildingJSON is one building instance and its per-turn capacity.
type BuildingJSON struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Capacity int64  `json:"capacity"`
}

// CategoryJSON describes one category. Which fields apply depends on Kind.
type CategoryJSON struct {
	Kind           string   `json:"kind"`
	Skill          string   `json:"skill,omitempty"`
	LimitToWorkers bool     `json:"limit_to_workers,omitempty"`
	Building       string   `json:"building,omitempty"`
	Output         string   `json:"output,omitempty"`
	Variant        string   `json:"variant,omitempty"`
	Good           string   `json:"good,omitempty"`
	Direction      string   `json:"direction,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	MaxUnits       *int64   `json:"max_units,omitempty"`
	Requested      float64  `json:"requested,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// Parse reads a JSON or YAML ruleset and validates it against the schema.
func Parse(raw []byte) (*RulesetJSON, error) {
	// YAML is a superset of JSON, so one decoder handles both.
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize ruleset: %w", err)
	}

	var instance any
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return nil, fmt.Errorf("failed to normalize ruleset: %w", err)
	}
	if err := rulesetSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("ruleset does not match schema: %w", err)
	}

	var rs RulesetJSON
	if err := json.Unmarshal(normalized, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset: %w", err)
	}
	return &rs, nil
}

// Load reads and parses a ruleset file.
func Load(path string) (*RulesetJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", path, err)
	}
	return Parse(raw)
}

// =============================================================================
// BUILDING
// =============================================================================

// Built is a ruleset turned into live objects, ready to be added to a
// controller.
type Built struct {
	Name               string
	CarryOverRequested bool
	Nations            []*allocation.Nation
	Capacities         *allocation.StaticCapacities
	Prices             allocation.StaticPrices

	stock     map[generic.NationID]generic.Cost
	income    map[generic.NationID]generic.Cost
	plans     map[generic.NationID]turn.FixedPlan
	requested map[generic.NationID]map[generic.CategoryID]float64
}

// Build validates the domain content and constructs every nation.
func (rs *RulesetJSON) Build(log *slog.Logger) (*Built, error) {
	if log == nil {
		log = slog.Default()
	}
	b := &Built{
		Name:               rs.Name,
		CarryOverRequested: rs.CarryOverRequested,
		Capacities:         allocation.NewStaticCapacities(),
		Prices:             allocation.StaticPrices{},
		stock:              make(map[generic.NationID]generic.Cost),
		income:             make(map[generic.NationID]generic.Cost),
		plans:              make(map[generic.NationID]turn.FixedPlan),
		requested:          make(map[generic.NationID]map[generic.CategoryID]float64),
	}

	for id, price := range rs.Prices {
		good, err := economy.ParseGood(id)
		if err != nil {
			return nil, fmt.Errorf("prices: %w", err)
		}
		b.Prices[good] = decimal.NewFromFloat(price)
	}

	seen := make(map[string]bool)
	for _, nj := range rs.Nations {
		if seen[nj.ID] {
			return nil, &generic.InvalidRequestError{Field: "nation", Value: nj.ID, Reason: "duplicate id"}
		}
		seen[nj.ID] = true
		n, err := b.buildNation(nj, log)
		if err != nil {
			return nil, fmt.Errorf("nation %s: %w", nj.ID, err)
		}
		b.Nations = append(b.Nations, n)
	}
	return b, nil
}

func (b *Built) buildNation(nj NationJSON, log *slog.Logger) (*allocation.Nation, error) {
	id := generic.NationID(nj.ID)

	profile := allocation.NationCapacity{
		Provinces:           nj.Provinces,
		RecruitmentUpgraded: nj.RecruitmentUpgraded,
		Buildings:           make(map[string]int64),
		Workers:             make(map[economy.WorkerSkill]int64),
		TradeLimit:          nj.TradeLimit,
	}
	kinds := make(map[string]economy.BuildingKind)
	for _, bj := range nj.Buildings {
		kind, err := economy.ParseBuilding(bj.Kind)
		if err != nil {
			return nil, err
		}
		profile.Buildings[bj.ID] = bj.Capacity
		kinds[bj.ID] = kind
	}
	for s, count := range nj.Workers {
		skill, err := economy.ParseSkill(s)
		if err != nil {
			return nil, err
		}
		profile.Workers[skill] = count
	}
	b.Capacities.Set(id, profile)

	opts := []allocation.NationOption{
		allocation.WithCapacities(b.Capacities),
		allocation.WithPrices(b.Prices),
		allocation.WithLogger(log),
	}
	if nj.Name != "" {
		opts = append(opts, allocation.WithName(nj.Name))
	}
	if nj.AI {
		opts = append(opts, allocation.AsAI())
	}
	n := allocation.NewNation(id, opts...)

	requested := make(map[generic.CategoryID]float64)
	for i, cj := range nj.Categories {
		c, err := buildCategory(cj, kinds)
		if err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
		if err := n.AddCategory(c); err != nil {
			return nil, err
		}
		if cj.Requested > 0 {
			requested[c.ID] = cj.Requested
		}
	}
	b.requested[id] = requested

	var err error
	if b.stock[id], err = parseQuantities(nj.Stock); err != nil {
		return nil, fmt.Errorf("stock: %w", err)
	}
	if b.income[id], err = parseQuantities(nj.Income); err != nil {
		return nil, fmt.Errorf("income: %w", err)
	}
	if len(nj.Plan) > 0 {
		plan := make(turn.FixedPlan, len(nj.Plan))
		for cat, amount := range nj.Plan {
			plan[generic.CategoryID(cat)] = amount
		}
		b.plans[id] = plan
	}
	return n, nil
}

func buildCategory(cj CategoryJSON, buildings map[string]economy.BuildingKind) (*allocation.Category, error) {
	kind, err := allocation.ParseKind(cj.Kind)
	if err != nil {
		return nil, err
	}

	var c *allocation.Category
	switch kind {
	case allocation.Recruitment:
		c = allocation.NewRecruitment()

	case allocation.Training:
		skill, err := economy.ParseSkill(cj.Skill)
		if err != nil {
			return nil, err
		}
		if c, err = allocation.NewTraining(skill); err != nil {
			return nil, err
		}
		c.Params.LimitToWorkers = cj.LimitToWorkers

	case allocation.Production:
		bk, ok := buildings[cj.Building]
		if !ok {
			return nil, &generic.InvalidRequestError{Field: "building", Value: cj.Building, Reason: "not declared on this nation"}
		}
		output, err := economy.ParseGood(cj.Output)
		if err != nil {
			return nil, err
		}
		if c, err = allocation.NewProduction(cj.Building, bk, output, cj.Variant); err != nil {
			return nil, err
		}

	case allocation.TradeOrder:
		good, err := economy.ParseGood(cj.Good)
		if err != nil {
			return nil, err
		}
		dir, err := allocation.ParseDirection(cj.Direction)
		if err != nil {
			return nil, err
		}
		price := decimal.Zero
		if cj.Price != nil {
			price = decimal.NewFromFloat(*cj.Price)
		}
		c = allocation.NewTradeOrder(good, dir, price)
	}

	if cj.MaxUnits != nil {
		c.WithMaxUnits(*cj.MaxUnits)
	}
	return c, nil
}

// parseQuantities turns {resource: qty} into a cost list. Cash and labor are
// accepted alongside goods.
func parseQuantities(m map[string]float64) (generic.Cost, error) {
	out := make(generic.Cost, 0, len(m))
	for id, qty := range m {
		r, err := economy.ParseResource(id)
		if err != nil {
			return nil, err
		}
		out = append(out, generic.CostLine{Resource: r, Amount: generic.NewAmount(qty, r.ResourceUnit())})
	}
	return out.Normalize(), nil
}

// =============================================================================
// APPLYING
// =============================================================================

// Apply registers every nation with the controller, deposits opening stock
// and sets opening requests for human nations. Deposits carry idempotency
// keys, so applying twice to the same journal does not double the stock.
func (b *Built) Apply(ctx context.Context, ctrl *turn.Controller) error {
	for _, n := range b.Nations {
		if err := ctrl.AddNation(n); err != nil {
			return err
		}
		for _, line := range b.stock[n.ID] {
			key := fmt.Sprintf("seed/%s/%s/%s", b.Name, n.ID, line.Resource.ResourceID())
			if err := ctrl.Deposit(ctx, n.ID, line.Resource, line.Amount, key); err != nil {
				return fmt.Errorf("seed %s: %w", n.ID, err)
			}
		}
	}
	for _, n := range b.Nations {
		if n.AI {
			continue
		}
		ids := make([]generic.CategoryID, 0, len(b.requested[n.ID]))
		for id := range b.requested[n.ID] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, err := ctrl.SetRequested(ctx, n.ID, id, b.requested[n.ID][id]); err != nil {
				return fmt.Errorf("opening request %s/%s: %w", n.ID, id, err)
			}
		}
	}
	return nil
}

// Income is the per-turn income of one nation. The same lines are credited
// every turn.
func (b *Built) Income(nation generic.NationID, _ generic.Turn) generic.Cost {
	return b.income[nation]
}

// Planner dispatches each AI nation to its fixed plan. Nations without a
// plan request nothing.
func (b *Built) Planner() turn.Planner {
	return turn.PlannerFunc(func(ctx context.Context, t generic.Turn, n *allocation.Nation) error {
		plan, ok := b.plans[n.ID]
		if !ok {
			return nil
		}
		return plan.Plan(ctx, t, n)
	})
}

// Options returns the controller options the ruleset asks for.
func (b *Built) Options(base turn.Options) turn.Options {
	base.CarryOverRequested = base.CarryOverRequested || b.CarryOverRequested
	return base
}
