/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built games that show the allocation rules at work. Each
	scenario is a ruleset plus an optional list of steps played after it
	loads, so a scenario can stop mid-turn or a few phases in.

AVAILABLE SCENARIOS:

	default:         Two nations with production, training and trade
	shortage:        5 canned food, 10 recruits requested: 5 allocated
	lower-request:   The shortage lowered to 3: the 2 newest holds released
	processing:      The turn ended: 3 recruits committed and handed off
	next-turn:       The following PlayerTurn: requests and holds reset
	finalize-order:  Recruitment and a food sale drawing on the same pool

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Parse the scenario's ruleset
 3. Build the game and apply opening stock and requests
 4. Play the scenario's steps

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shortage"}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with its DTO, ruleset and steps

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadRuleset
  - factory/presets.go: The default ruleset
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
)

var errUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioStep func(ctx context.Context, g *factory.Game) error

type scenario struct {
	ScenarioDTO
	ruleset string
	steps   []scenarioStep
}

// shortageRuleset has one nation whose recruitment is limited by canned
// food alone: 40 provinces allow 10 recruits and clothing and furniture
// are plentiful.
const shortageRuleset = `
name: shortage
nations:
  - id: player
    name: Player
    provinces: 40
    stock: {canned_food: 5, clothing: 20, furniture: 20}
    categories:
      - {kind: recruitment, requested: 10}
`

const finalizeOrderRuleset = `
name: finalize-order
prices: {canned_food: 20}
nations:
  - id: player
    name: Player
    provinces: 40
    stock: {canned_food: 5, clothing: 20, furniture: 20}
    categories:
      - {kind: recruitment, requested: 3}
      - {kind: trade_order, good: canned_food, direction: sell, requested: 5}
`

func setRequested(nation, category string, amount float64) scenarioStep {
	return func(ctx context.Context, g *factory.Game) error {
		_, err := g.Ctrl.SetRequested(ctx, generic.NationID(nation), generic.CategoryID(category), amount)
		return err
	}
}

func endTurn(ctx context.Context, g *factory.Game) error { return g.EndTurn(ctx) }
func advance(ctx context.Context, g *factory.Game) error { return g.Advance(ctx) }

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "default",
			Name:        "Default Game",
			Description: "Player and AI rival with production, training and trade orders",
			Category:    "game",
		},
		ruleset: factory.DefaultRulesetYAML,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shortage",
			Name:        "Shortage",
			Description: "10 recruits requested with 5 canned food: allocation saturates at 5",
			Category:    "allocation",
		},
		ruleset: shortageRuleset,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "lower-request",
			Name:        "Lower Request",
			Description: "The shortage lowered to 3: the two newest holds are released",
			Category:    "allocation",
		},
		ruleset: shortageRuleset,
		steps:   []scenarioStep{setRequested("player", "recruitment", 3)},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "processing",
			Name:        "Processing",
			Description: "Turn ended: 3 recruits committed, 2 canned food left",
			Category:    "turn",
		},
		ruleset: shortageRuleset,
		steps:   []scenarioStep{setRequested("player", "recruitment", 3), endTurn},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "next-turn",
			Name:        "Next Turn",
			Description: "The following PlayerTurn: requests and holds reset",
			Category:    "turn",
		},
		ruleset: shortageRuleset,
		steps:   []scenarioStep{setRequested("player", "recruitment", 3), endTurn, advance, advance},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "finalize-order",
			Name:        "Finalize Order",
			Description: "Recruitment and a canned food sale share one pool; recruitment commits first",
			Category:    "turn",
		},
		ruleset: finalizeOrderRuleset,
		steps:   []scenarioStep{endTurn},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, h.turnDTO(h.Game()))
}

// ResetGame reloads the current scenario from scratch, or the default game
// when none is loaded.
func (h *Handler) ResetGame(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()
	if current == "" {
		current = "default"
	}
	if err := h.loadScenario(r.Context(), current); err != nil {
		writeDomainError(w, "Failed to reset", err)
		return
	}
	writeJSON(w, http.StatusOK, h.turnDTO(h.Game()))
}

// LoadScenarioByID loads a scenario outside of a request (server startup).
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	return h.loadScenario(ctx, id)
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("%w: scenario %q", errUnknownScenario, id)
	}
	rs, err := factory.Parse([]byte(s.ruleset))
	if err != nil {
		return err
	}
	if err := h.LoadRuleset(ctx, rs, s.ID); err != nil {
		return err
	}
	g := h.Game()
	for i, step := range s.steps {
		if err := step(ctx, g); err != nil {
			return fmt.Errorf("scenario %s step %d: %w", s.ID, i+1, err)
		}
	}
	return nil
}
