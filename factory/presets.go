package factory

// =============================================================================
// PRESET RULESETS
// =============================================================================
//
// DefaultRulesetYAML is a two-nation game used by the simulator and the demo
// server: a human nation with a small industrial base and an AI rival that
// recruits and sells coal every turn.

const DefaultRulesetYAML = `
name: default
carry_over_requested: false
prices:
  coal: 12
  iron: 15
  canned_food: 20
nations:
  - id: player
    name: Player
    provinces: 12
    trade_limit: 10
    buildings:
      - {id: mill-1, kind: lumber_mill, capacity: 4}
      - {id: cannery-1, kind: food_processing_center, capacity: 3}
    workers: {untrained: 10, trained: 2}
    stock:
      canned_food: 5
      clothing: 4
      furniture: 4
      paper: 6
      timber: 20
      grain: 10
      fruit: 5
      livestock: 5
      fish: 5
      coal: 8
      cash: 1000
      labor: 12
    income:
      labor: 12
      timber: 6
      grain: 4
      cash: 150
    categories:
      - {kind: recruitment, requested: 2}
      - {kind: training, skill: untrained, limit_to_workers: true}
      - {kind: production, building: mill-1, output: lumber, requested: 2}
      - {kind: production, building: mill-1, output: paper}
      - {kind: production, building: cannery-1, output: canned_food}
      - {kind: production, building: cannery-1, output: canned_food, variant: fish}
      - {kind: trade_order, good: coal, direction: sell}
      - {kind: trade_order, good: iron, direction: buy, price: 15}
  - id: rival
    name: Rival
    ai: true
    provinces: 8
    stock:
      canned_food: 6
      clothing: 6
      furniture: 6
      coal: 20
      cash: 500
    income:
      coal: 3
    categories:
      - {kind: recruitment}
      - {kind: trade_order, good: coal, direction: sell}
    plan:
      recruitment: 1
      trade/sell/coal: 2
`

// Default parses DefaultRulesetYAML.
func Default() (*RulesetJSON, error) {
	return Parse([]byte(DefaultRulesetYAML))
}
