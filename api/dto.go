/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Amounts rendered as plain numbers instead of decimals

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Turn:        TurnDTO
  Nations:     NationDTO, NationDetailDTO, PoolDTO
  Categories:  StatusDTO, CapsDTO, RequestedRequest
  Stock:       DepositRequest, AvailableDTO
  History:     HandoffDTO, TransactionDTO, PhaseRunDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags, checked in the handler
  before anything reaches the controller.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/store/sqlite"
)

// =============================================================================
// TURN
// =============================================================================

type TurnDTO struct {
	Turn     int    `json:"turn"`
	Phase    string `json:"phase"`
	Game     string `json:"game"`
	Scenario string `json:"scenario,omitempty"`
}

// =============================================================================
// NATIONS AND POOLS
// =============================================================================

type NationDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AI         bool   `json:"ai"`
	Categories int    `json:"categories"`
	Reserved   bool   `json:"has_reservations"`
}

type NationDetailDTO struct {
	NationDTO
	Pools      []PoolDTO   `json:"pools"`
	Categories []StatusDTO `json:"category_status"`
}

type PoolDTO struct {
	Resource  string  `json:"resource"`
	Unit      string  `json:"unit"`
	OnHand    float64 `json:"on_hand"`
	Reserved  float64 `json:"reserved"`
	Available float64 `json:"available"`
	Live      int     `json:"live_reservations"`
}

func toPoolDTO(v generic.PoolView) PoolDTO {
	return PoolDTO{
		Resource:  v.Resource.ResourceID(),
		Unit:      string(v.OnHand.Unit),
		OnHand:    v.OnHand.Value.InexactFloat64(),
		Reserved:  v.Reserved.Value.InexactFloat64(),
		Available: v.Available.Value.InexactFloat64(),
		Live:      v.Live,
	}
}

// =============================================================================
// CATEGORIES
// =============================================================================

type CapsDTO struct {
	Hard     int64  `json:"hard"`
	Resource int64  `json:"resource"`
	Treasury int64  `json:"treasury"`
	Binding  string `json:"binding,omitempty"`
}

type StatusDTO struct {
	CategoryID string   `json:"category_id"`
	Kind       string   `json:"kind"`
	Requested  int64    `json:"requested"`
	Allocated  int64    `json:"allocated"`
	Partial    bool     `json:"partial"`
	Finalized  bool     `json:"finalized"`
	Caps       CapsDTO  `json:"caps"`
	Holds      []uint64 `json:"holds"`

	Skill     string `json:"skill,omitempty"`
	Building  string `json:"building,omitempty"`
	Output    string `json:"output,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Good      string `json:"good,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// allocation.Unlimited is reported as -1 so clients can tell "no cap".
func capValue(v int64) int64 {
	if v >= allocation.Unlimited {
		return -1
	}
	return v
}

func toStatusDTO(s allocation.Status) StatusDTO {
	holds := make([]uint64, len(s.Holds))
	for i, id := range s.Holds {
		holds[i] = uint64(id)
	}
	return StatusDTO{
		CategoryID: string(s.CategoryID),
		Kind:       s.Kind.String(),
		Requested:  s.Requested,
		Allocated:  s.Allocated,
		Partial:    s.Partial(),
		Finalized:  s.Finalized,
		Caps: CapsDTO{
			Hard:     capValue(s.Caps.Hard),
			Resource: capValue(s.Caps.Resource),
			Treasury: capValue(s.Caps.Treasury),
			Binding:  s.Caps.Binding,
		},
		Holds:     holds,
		Skill:     string(s.Params.Skill),
		Building:  s.Params.Building,
		Output:    string(s.Params.Output),
		Variant:   s.Params.Variant,
		Good:      string(s.Params.Good),
		Direction: string(s.Params.Direction),
	}
}

// RequestedRequest sets or previews a category's requested amount. Fractions
// are floored by the engine.
type RequestedRequest struct {
	CategoryID string   `json:"category_id" validate:"required"`
	Amount     *float64 `json:"amount" validate:"required"`
}

// =============================================================================
// STOCK
// =============================================================================

type DepositRequest struct {
	Resource       string  `json:"resource" validate:"required"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	IdempotencyKey string  `json:"idempotency_key,omitempty" validate:"omitempty,max=200"`
}

type AvailableDTO struct {
	CategoryID string  `json:"category_id"`
	Resource   string  `json:"resource"`
	Available  float64 `json:"available"`
}

// =============================================================================
// HISTORY
// =============================================================================

type HandoffDTO struct {
	ID         string         `json:"id"`
	NationID   string         `json:"nation_id"`
	Turn       int            `json:"turn"`
	CategoryID string         `json:"category_id"`
	Kind       string         `json:"kind"`
	Quantity   int64          `json:"quantity"`
	Requested  int64          `json:"requested"`
	Consumed   []CostLineDTO  `json:"consumed"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

type CostLineDTO struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
}

func toHandoffDTO(h allocation.Handoff) HandoffDTO {
	consumed := make([]CostLineDTO, len(h.Consumed))
	for i, c := range h.Consumed {
		consumed[i] = CostLineDTO{Resource: c.Resource.ResourceID(), Amount: c.Amount.Value.InexactFloat64()}
	}
	details := map[string]any{}
	if h.Skill != "" {
		details["skill"] = string(h.Skill)
	}
	if h.Building != "" {
		details["building"] = h.Building
	}
	if h.Output != "" {
		details["output"] = string(h.Output)
	}
	if h.Good != "" {
		details["good"] = string(h.Good)
		details["direction"] = string(h.Direction)
	}
	if len(details) == 0 {
		details = nil
	}
	return HandoffDTO{
		ID:         h.ID,
		NationID:   string(h.NationID),
		Turn:       int(h.Turn),
		CategoryID: string(h.CategoryID),
		Kind:       h.Kind.String(),
		Quantity:   h.Quantity,
		Requested:  h.Requested,
		Consumed:   consumed,
		Details:    details,
		CreatedAt:  h.CreatedAt.Format(time.RFC3339),
	}
}

type TransactionDTO struct {
	ID             string            `json:"id"`
	NationID       string            `json:"nation_id"`
	Resource       string            `json:"resource"`
	Turn           int               `json:"turn"`
	Delta          float64           `json:"delta"`
	Unit           string            `json:"unit"`
	Type           string            `json:"type"`
	CategoryID     string            `json:"category_id,omitempty"`
	ReservationID  uint64            `json:"reservation_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		NationID:       string(tx.NationID),
		Resource:       tx.Resource.ResourceID(),
		Turn:           int(tx.Turn),
		Delta:          tx.Delta.Value.InexactFloat64(),
		Unit:           string(tx.Delta.Unit),
		Type:           string(tx.Type),
		CategoryID:     string(tx.CategoryID),
		ReservationID:  uint64(tx.ReservationID),
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		Metadata:       tx.Metadata,
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

type PhaseRunDTO struct {
	ID          string  `json:"id"`
	Turn        int     `json:"turn"`
	FromPhase   string  `json:"from_phase"`
	ToPhase     string  `json:"to_phase"`
	Status      string  `json:"status"`
	Handoffs    int     `json:"handoffs"`
	Error       string  `json:"error,omitempty"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func toPhaseRunDTO(r sqlite.PhaseRun) PhaseRunDTO {
	dto := PhaseRunDTO{
		ID:        r.ID,
		Turn:      r.Turn,
		FromPhase: r.FromPhase,
		ToPhase:   r.ToPhase,
		Status:    r.Status,
		Handoffs:  r.Handoffs,
		Error:     r.Error,
	}
	if r.StartedAt != nil {
		s := r.StartedAt.Format(time.RFC3339)
		dto.StartedAt = &s
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
