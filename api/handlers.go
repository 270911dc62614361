/*
handlers.go - HTTP API handlers for the allocation engine

PURPOSE:
  Exposes the turn controller via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the controller.

ENDPOINTS:
  Turn:
    GET    /api/turn                          Current turn and phase
    POST   /api/turn/end                      End the player's turn
    POST   /api/turn/advance                  Run the next automatic transition

  Nations:
    GET    /api/nations                       List nations
    GET    /api/nations/{id}                  Pools and category status
    GET    /api/nations/{id}/pools            Pool figures
    POST   /api/nations/{id}/deposits         Credit stock (idempotent by key)

  Categories:
    GET    /api/nations/{id}/categories       Status of every category
    GET    /api/nations/{id}/categories/{cat} One category (ID path-escaped)
    PUT    /api/nations/{id}/requested        Set a category's requested amount
    POST   /api/nations/{id}/preview          What a request would get
    GET    /api/nations/{id}/available        Available stock for a category

  History:
    GET    /api/nations/{id}/handoffs?turn=N  Finalize handoffs
    GET    /api/nations/{id}/journal?turn=N   Journal entries
    GET    /api/effects?kind=K                Delivered handoffs
    GET    /api/transactions?limit=N          Recent journal, all nations
    GET    /api/phase-runs                    Scheduler transitions

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario
    POST   /api/rulesets                      Load a ruleset document

ARCHITECTURE:
  Handler holds the running game. Loading a scenario or a ruleset replaces
  it under a write lock; every other handler reads it under a read lock and
  lets the controller serialize the actual work.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Nation, category or resource not found
  - 409: Wrong phase, conflicting idempotency key
  - 429: Mutation rate limit exceeded
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/store/sqlite"
	"github.com/warp/allocation-engine/turn"
)

// maxRulesetBytes bounds an uploaded ruleset document.
const maxRulesetBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine turn.Options
	Log    *slog.Logger

	validate *validator.Validate

	mu              sync.RWMutex
	game            *factory.Game
	currentScenario string
}

// NewHandler creates a handler with no game loaded.
func NewHandler(store *sqlite.Store, engine turn.Options, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Store:    store,
		Engine:   engine,
		Log:      log,
		validate: validator.New(),
	}
}

// LoadRuleset clears the database and starts a new game from the ruleset.
func (h *Handler) LoadRuleset(ctx context.Context, rs *factory.RulesetJSON, scenario string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	g, err := factory.NewGame(ctx, rs, factory.GameOptions{
		Engine:     h.Engine,
		Ledger:     generic.NewLedger(h.Store),
		Handoffs:   h.Store,
		SavePoints: h.Store,
		Settle:     true,
		Log:        h.Log,
	})
	if err != nil {
		return err
	}
	h.game = g
	h.currentScenario = scenario
	h.Log.Info("game loaded", "game", g.Name, "scenario", scenario, "nations", len(g.Rules.Nations))
	return nil
}

// Game returns the running game, or nil.
func (h *Handler) Game() *factory.Game {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.game
}

// requireGame writes 409 and returns nil when nothing is loaded.
func (h *Handler) requireGame(w http.ResponseWriter) *factory.Game {
	g := h.Game()
	if g == nil {
		writeError(w, http.StatusConflict, "No game loaded", errors.New("load a scenario or ruleset first"))
	}
	return g
}

// =============================================================================
// TURN HANDLERS
// =============================================================================

// GetTurn returns the current turn and phase.
// GET /api/turn
func (h *Handler) GetTurn(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	writeJSON(w, http.StatusOK, h.turnDTO(g))
}

// EndTurn is the player's end-turn command.
// POST /api/turn/end
func (h *Handler) EndTurn(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	if err := g.EndTurn(r.Context()); err != nil {
		writeDomainError(w, "Failed to end turn", err)
		return
	}
	writeJSON(w, http.StatusOK, h.turnDTO(g))
}

// AdvancePhase runs the next automatic transition.
// POST /api/turn/advance
func (h *Handler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	if err := g.Advance(r.Context()); err != nil {
		writeDomainError(w, "Failed to advance", err)
		return
	}
	writeJSON(w, http.StatusOK, h.turnDTO(g))
}

func (h *Handler) turnDTO(g *factory.Game) TurnDTO {
	st := g.Ctrl.State()
	h.mu.RLock()
	scenario := h.currentScenario
	h.mu.RUnlock()
	return TurnDTO{Turn: st.Turn, Phase: string(st.Phase), Game: g.Name, Scenario: scenario}
}

// =============================================================================
// NATION HANDLERS
// =============================================================================

// ListNations returns every nation.
// GET /api/nations
func (h *Handler) ListNations(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	nations := g.Ctrl.Nations()
	dtos := make([]NationDTO, len(nations))
	for i, n := range nations {
		dtos[i] = toNationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNation returns a nation's pools and category status.
// GET /api/nations/{id}
func (h *Handler) GetNation(w http.ResponseWriter, r *http.Request) {
	n, ok := h.nation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NationDetailDTO{
		NationDTO:  toNationDTO(n),
		Pools:      poolDTOs(n),
		Categories: statusDTOs(n.Statuses()),
	})
}

// GetPools returns a nation's pools.
// GET /api/nations/{id}/pools
func (h *Handler) GetPools(w http.ResponseWriter, r *http.Request) {
	n, ok := h.nation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, poolDTOs(n))
}

// Deposit credits stock that arrived from outside the engine.
// POST /api/nations/{id}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := economy.ParseResource(req.Resource)
	if err != nil {
		writeDomainError(w, "Unknown resource", err)
		return
	}

	nation := generic.NationID(chi.URLParam(r, "id"))
	amount := generic.NewAmount(req.Amount, resource.ResourceUnit())
	if err := g.Ctrl.Deposit(r.Context(), nation, resource, amount, req.IdempotencyKey); err != nil {
		writeDomainError(w, "Failed to deposit", err)
		return
	}

	n, err := g.Ctrl.Nation(nation)
	if err != nil {
		writeDomainError(w, "Nation not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDTO(n.Pool(resource)))
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns the status of every category of a nation.
// GET /api/nations/{id}/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	n, ok := h.nation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusDTOs(n.Statuses()))
}

// GetCategory returns one category. Category IDs contain slashes, so clients
// path-escape them.
// GET /api/nations/{id}/categories/{category}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	n, ok := h.nation(w, r)
	if !ok {
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category id", err)
		return
	}
	st, err := n.Status(generic.CategoryID(id))
	if err != nil {
		writeDomainError(w, "Category not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(st))
}

// SetRequested sets a category's requested amount and returns the new
// allocation. Only the nation's own phase accepts it.
// PUT /api/nations/{id}/requested
func (h *Handler) SetRequested(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	var req RequestedRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := g.Ctrl.SetRequested(r.Context(), generic.NationID(chi.URLParam(r, "id")), generic.CategoryID(req.CategoryID), *req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to set requested", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(st))
}

// Preview returns what a request would be allocated, without changing
// anything.
// POST /api/nations/{id}/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	var req RequestedRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := g.Ctrl.Preview(generic.NationID(chi.URLParam(r, "id")), generic.CategoryID(req.CategoryID), *req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to preview", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(st))
}

// GetAvailable returns the available stock of a resource as seen by a
// category.
// GET /api/nations/{id}/available?category=...&resource=...
func (h *Handler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	category := r.URL.Query().Get("category")
	resourceID := r.URL.Query().Get("resource")
	if category == "" || resourceID == "" {
		writeError(w, http.StatusBadRequest, "category and resource are required", nil)
		return
	}
	resource, err := economy.ParseResource(resourceID)
	if err != nil {
		writeDomainError(w, "Unknown resource", err)
		return
	}
	amt, err := g.Ctrl.Available(generic.NationID(chi.URLParam(r, "id")), generic.CategoryID(category), resource)
	if err != nil {
		writeDomainError(w, "Failed to get available", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailableDTO{
		CategoryID: category,
		Resource:   resourceID,
		Available:  amt.Value.InexactFloat64(),
	})
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// GetHandoffs returns a nation's handoffs for a turn (default: current).
// GET /api/nations/{id}/handoffs?turn=N
func (h *Handler) GetHandoffs(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	t, ok := turnParam(w, r, g)
	if !ok {
		return
	}
	nation := generic.NationID(chi.URLParam(r, "id"))
	if _, err := g.Ctrl.Nation(nation); err != nil {
		writeDomainError(w, "Nation not found", err)
		return
	}
	hs, err := g.Ctrl.Handoffs(r.Context(), nation, t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get handoffs", err)
		return
	}
	dtos := make([]HandoffDTO, len(hs))
	for i, ho := range hs {
		dtos[i] = toHandoffDTO(ho)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetJournal returns a nation's journal entries for a turn (default: current).
// GET /api/nations/{id}/journal?turn=N
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	t, ok := turnParam(w, r, g)
	if !ok {
		return
	}
	nation := generic.NationID(chi.URLParam(r, "id"))
	if _, err := g.Ctrl.Nation(nation); err != nil {
		writeDomainError(w, "Nation not found", err)
		return
	}
	txs, err := g.Ctrl.Journal(r.Context(), nation, t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get journal", err)
		return
	}
	writeJSON(w, http.StatusOK, transactionDTOs(txs))
}

// ListEffects returns every delivered handoff, optionally of one kind.
// GET /api/effects?kind=K
func (h *Handler) ListEffects(w http.ResponseWriter, r *http.Request) {
	g := h.requireGame(w)
	if g == nil {
		return
	}
	var filter *allocation.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := allocation.ParseKind(k)
		if err != nil {
			writeDomainError(w, "Invalid kind", err)
			return
		}
		filter = &kind
	}
	dtos := []HandoffDTO{}
	for _, ho := range g.Queue.All() {
		if filter == nil || ho.Kind == *filter {
			dtos = append(dtos, toHandoffDTO(ho))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListTransactions returns the most recent journal entries of every nation.
// GET /api/transactions?limit=N
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	txs, err := h.Store.GetAllTransactions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, transactionDTOs(txs))
}

// ListPhaseRuns returns the scheduler's recorded transitions.
// GET /api/phase-runs?status=completed
func (h *Handler) ListPhaseRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.GetPhaseRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list phase runs", err)
		return
	}
	dtos := make([]PhaseRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toPhaseRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RULESET HANDLERS
// =============================================================================

// LoadRulesetDocument starts a new game from a posted YAML or JSON ruleset.
// POST /api/rulesets
func (h *Handler) LoadRulesetDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRulesetBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	rs, err := factory.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ruleset", err)
		return
	}
	if err := h.LoadRuleset(r.Context(), rs, ""); err != nil {
		writeDomainError(w, "Failed to load ruleset", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.turnDTO(h.Game()))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) nation(w http.ResponseWriter, r *http.Request) (*allocation.Nation, bool) {
	g := h.requireGame(w)
	if g == nil {
		return nil, false
	}
	n, err := g.Ctrl.Nation(generic.NationID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Nation not found", err)
		return nil, false
	}
	return n, true
}

// decode reads a JSON body and validates it. It writes 400 and returns false
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func turnParam(w http.ResponseWriter, r *http.Request, g *factory.Game) (generic.Turn, bool) {
	s := r.URL.Query().Get("turn")
	if s == "" {
		return g.Ctrl.Turn(), true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "Invalid turn", err)
		return 0, false
	}
	return generic.Turn(n), true
}

func toNationDTO(n *allocation.Nation) NationDTO {
	name := n.Name
	if name == "" {
		name = string(n.ID)
	}
	return NationDTO{
		ID:         string(n.ID),
		Name:       name,
		AI:         n.AI,
		Categories: len(n.Statuses()),
		Reserved:   n.HasLiveReservations(),
	}
}

func poolDTOs(n *allocation.Nation) []PoolDTO {
	views := n.Pools()
	dtos := make([]PoolDTO, len(views))
	for i, v := range views {
		dtos[i] = toPoolDTO(v)
	}
	return dtos
}

func statusDTOs(ss []allocation.Status) []StatusDTO {
	dtos := make([]StatusDTO, len(ss))
	for i, s := range ss {
		dtos[i] = toStatusDTO(s)
	}
	return dtos
}

func transactionDTOs(txs []generic.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err), errors.Is(err, errUnknownScenario):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrWrongPhase), errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
