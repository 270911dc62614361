/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the engine using SQLite. The
  journal, the handoff records and the save points live side by side so a
  game can be inspected or resumed from one file.

INTERFACES IMPLEMENTED:
  generic.Store:           Journal persistence
  generic.SavePointStore:  Turn-boundary stock snapshots
  allocation.HandoffStore: Finalize handoff records

APPEND-ONLY ENFORCEMENT:
  The journal is append-only:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table (Reset aside, which
    exists for the demo server only)
  - Idempotency keys are UNIQUE, so replaying a finalize is rejected

KEY TABLES:
  transactions: Immutable journal of stock movements
  handoffs:     One row per category per turn that delivered something
  save_points:  On-hand stock at the start of each PlayerTurn
  phase_runs:   Audit of scheduled phase transitions

INDEXES:
  - idx_transactions_nation_resource: NetChange and per-resource history
  - idx_transactions_nation_turn: Journal of one turn
  - idx_handoffs_nation_turn: Handoffs of one turn

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Nations finalize in parallel but the
  controller persists their results one at a time.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/allocation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/allocation-engine/allocation"
	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.Store           = (*Store)(nil)
	_ generic.SavePointStore  = (*Store)(nil)
	_ allocation.HandoffStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		nation_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		category_id TEXT,
		reservation_id INTEGER,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_nation_resource
		ON transactions(nation_id, resource_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_nation_turn
		ON transactions(nation_id, turn);

	-- Finalize handoffs
	CREATE TABLE IF NOT EXISTS handoffs (
		id TEXT PRIMARY KEY,
		nation_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		category_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		requested INTEGER NOT NULL,
		consumed_json TEXT NOT NULL,
		skill TEXT,
		building TEXT,
		output TEXT,
		good TEXT,
		direction TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(nation_id, turn, category_id)
	);

	CREATE INDEX IF NOT EXISTS idx_handoffs_nation_turn
		ON handoffs(nation_id, turn);

	-- Save points (one per nation per turn, overwritten)
	CREATE TABLE IF NOT EXISTS save_points (
		id TEXT NOT NULL,
		nation_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		on_hand_json TEXT NOT NULL,
		requested_json TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		PRIMARY KEY (nation_id, turn)
	);

	-- Phase transition audit
	CREATE TABLE IF NOT EXISTS phase_runs (
		id TEXT PRIMARY KEY,
		turn INTEGER NOT NULL,
		from_phase TEXT NOT NULL,
		to_phase TEXT NOT NULL,
		status TEXT NOT NULL,
		handoffs INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(turn, from_phase)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

const transactionColumns = `id, nation_id, resource_id, turn, delta_value, delta_unit,
	tx_type, category_id, reservation_id, reason, idempotency_key, metadata_json, created_at`

// Append adds a transaction to the journal.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO transactions
		(` + transactionColumns + `, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions))
	`

	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.NationID),
		tx.Resource.ResourceID(),
		int(tx.Turn),
		tx.Delta.Value.String(),
		string(tx.Delta.Unit),
		string(tx.Type),
		nullString(string(tx.CategoryID)),
		int64(tx.ReservationID),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		createdAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all transactions for a nation+resource in append order.
func (s *Store) Load(ctx context.Context, nation generic.NationID, resourceID string) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE nation_id = ? AND resource_id = ?
		ORDER BY seq ASC
	`

	return s.queryTransactions(ctx, query, string(nation), resourceID)
}

// LoadTurn returns everything a nation journaled in one turn.
func (s *Store) LoadTurn(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE nation_id = ? AND turn = ?
		ORDER BY seq ASC
	`

	return s.queryTransactions(ctx, query, string(nation), int(turn))
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		id             string
		nationID       string
		resourceID     string
		turn           int
		deltaValue     string
		deltaUnit      string
		txType         string
		categoryID     sql.NullString
		reservationID  sql.NullInt64
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&id, &nationID, &resourceID, &turn, &deltaValue, &deltaUnit,
		&txType, &categoryID, &reservationID, &reason, &idempotencyKey, &metadataJSON, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = generic.TransactionID(id)
	tx.NationID = generic.NationID(nationID)
	tx.Resource = generic.GetOrCreateResource(resourceID)
	tx.Turn = generic.Turn(turn)
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.Type = generic.TransactionType(txType)
	tx.CategoryID = generic.CategoryID(categoryID.String)
	tx.ReservationID = generic.ReservationID(reservationID.Int64)
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads through the open transaction so a caller sees its own
// uncommitted writes.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return ts.parent.appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := ts.parent.appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, nation generic.NationID, resourceID string) ([]generic.Transaction, error) {
	return ts.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE nation_id = ? AND resource_id = ? ORDER BY seq ASC`, string(nation), resourceID)
}

func (ts *txStore) LoadTurn(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]generic.Transaction, error) {
	return ts.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE nation_id = ? AND turn = ? ORDER BY seq ASC`, string(nation), int(turn))
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?", idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (ts *txStore) query(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := ts.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// HANDOFF STORE (allocation.HandoffStore interface)
// =============================================================================

type consumedLine struct {
	Resource string `json:"resource"`
	Value    string `json:"value"`
	Unit     string `json:"unit"`
}

// SaveHandoffs persists a finalize's handoffs atomically. A handoff for the
// same nation, turn and category is stored once.
func (s *Store) SaveHandoffs(ctx context.Context, hs []allocation.Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO handoffs (id, nation_id, turn, category_id, kind, quantity, requested,
			consumed_json, skill, building, output, good, direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(nation_id, turn, category_id) DO NOTHING
	`
	for _, h := range hs {
		lines := make([]consumedLine, len(h.Consumed))
		for i, c := range h.Consumed {
			lines[i] = consumedLine{Resource: c.Resource.ResourceID(), Value: c.Amount.Value.String(), Unit: string(c.Amount.Unit)}
		}
		consumedJSON, _ := json.Marshal(lines)

		if _, err := sqlTx.ExecContext(ctx, query,
			h.ID, string(h.NationID), int(h.Turn), string(h.CategoryID), h.Kind.String(),
			h.Quantity, h.Requested, string(consumedJSON),
			nullString(string(h.Skill)), nullString(h.Building), nullString(string(h.Output)),
			nullString(string(h.Good)), nullString(string(h.Direction)),
			h.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to save handoff %s: %w", h.CategoryID, err)
		}
	}

	return sqlTx.Commit()
}

// ListHandoffs returns a nation's handoffs of one turn in finalize order.
func (s *Store) ListHandoffs(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]allocation.Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nation_id, turn, category_id, kind, quantity, requested, consumed_json,
			skill, building, output, good, direction, created_at
		FROM handoffs
		WHERE nation_id = ? AND turn = ?
	`, string(nation), int(turn))
	if err != nil {
		return nil, fmt.Errorf("failed to query handoffs: %w", err)
	}
	defer rows.Close()

	var out []allocation.Handoff
	for rows.Next() {
		var (
			h                                        allocation.Handoff
			id, nationID, categoryID, kind, consumed string
			turnNum                                  int
			skill, building, output, good, direction sql.NullString
			createdAt                                string
		)
		if err := rows.Scan(&id, &nationID, &turnNum, &categoryID, &kind, &h.Quantity, &h.Requested,
			&consumed, &skill, &building, &output, &good, &direction, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan handoff: %w", err)
		}
		h.ID = id
		h.NationID = generic.NationID(nationID)
		h.Turn = generic.Turn(turnNum)
		h.CategoryID = generic.CategoryID(categoryID)
		h.Kind, _ = allocation.ParseKind(kind)
		h.Skill = economy.WorkerSkill(skill.String)
		h.Building = building.String
		h.Output = economy.Good(output.String)
		h.Good = economy.Good(good.String)
		h.Direction = allocation.TradeDirection(direction.String)
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		var lines []consumedLine
		if err := json.Unmarshal([]byte(consumed), &lines); err != nil {
			return nil, fmt.Errorf("failed to decode consumed of %s: %w", categoryID, err)
		}
		for _, l := range lines {
			h.Consumed = append(h.Consumed, generic.CostLine{
				Resource: generic.GetOrCreateResource(l.Resource),
				Amount:   parseAmount(l.Value, l.Unit),
			})
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHandoffs(out)
	return out, nil
}

func sortHandoffs(hs []allocation.Handoff) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && handoffLess(hs[j], hs[j-1]); j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

func handoffLess(a, b allocation.Handoff) bool {
	if a.Kind.Rank() != b.Kind.Rank() {
		return a.Kind.Rank() < b.Kind.Rank()
	}
	return a.CategoryID < b.CategoryID
}

// =============================================================================
// SAVE POINT STORE (generic.SavePointStore interface)
// =============================================================================

type amountJSON struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// SaveSavePoint stores a save point, replacing any earlier one for the same
// nation and turn.
func (s *Store) SaveSavePoint(ctx context.Context, sp generic.SavePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onHand := make(map[string]amountJSON, len(sp.OnHand))
	for id, amt := range sp.OnHand {
		onHand[id] = amountJSON{Value: amt.Value.String(), Unit: string(amt.Unit)}
	}
	onHandJSON, err := json.Marshal(onHand)
	if err != nil {
		return fmt.Errorf("failed to encode save point: %w", err)
	}
	requestedJSON, err := json.Marshal(sp.Requested)
	if err != nil {
		return fmt.Errorf("failed to encode save point: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_points (id, nation_id, turn, on_hand_json, requested_json, taken_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(nation_id, turn) DO UPDATE SET
			id = excluded.id,
			on_hand_json = excluded.on_hand_json,
			requested_json = excluded.requested_json,
			taken_at = excluded.taken_at
	`, sp.ID, string(sp.NationID), int(sp.Turn), string(onHandJSON), string(requestedJSON),
		sp.TakenAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save save point: %w", err)
	}
	return nil
}

// LatestSavePoint returns the most recent save point of a nation, or nil.
func (s *Store) LatestSavePoint(ctx context.Context, nation generic.NationID) (*generic.SavePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sp                               generic.SavePoint
		nationID, onHandJSON, reqJSON, at string
		turn                             int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nation_id, turn, on_hand_json, requested_json, taken_at
		FROM save_points
		WHERE nation_id = ?
		ORDER BY turn DESC
		LIMIT 1
	`, string(nation)).Scan(&sp.ID, &nationID, &turn, &onHandJSON, &reqJSON, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load save point: %w", err)
	}

	sp.NationID = generic.NationID(nationID)
	sp.Turn = generic.Turn(turn)
	sp.TakenAt, _ = time.Parse(time.RFC3339Nano, at)

	var onHand map[string]amountJSON
	if err := json.Unmarshal([]byte(onHandJSON), &onHand); err != nil {
		return nil, fmt.Errorf("failed to decode save point: %w", err)
	}
	sp.OnHand = make(map[string]generic.Amount, len(onHand))
	for id, a := range onHand {
		sp.OnHand[id] = parseAmount(a.Value, a.Unit)
	}
	sp.Requested = make(map[generic.CategoryID]int64)
	if err := json.Unmarshal([]byte(reqJSON), &sp.Requested); err != nil {
		return nil, fmt.Errorf("failed to decode save point: %w", err)
	}
	return &sp, nil
}

// =============================================================================
// PHASE RUNS STORE
// =============================================================================

// PhaseRun records one scheduled phase transition.
type PhaseRun struct {
	ID          string
	Turn        int
	FromPhase   string
	ToPhase     string
	Status      string // running, completed, failed
	Handoffs    int
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// SavePhaseRun saves or updates a phase run.
func (s *Store) SavePhaseRun(ctx context.Context, r PhaseRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO phase_runs (id, turn, from_phase, to_phase, status, handoffs, error,
			started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn, from_phase) DO UPDATE SET
			to_phase = excluded.to_phase,
			status = excluded.status,
			handoffs = excluded.handoffs,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	var startedAt, completedAt *string
	if r.StartedAt != nil {
		s := r.StartedAt.UTC().Format(time.RFC3339Nano)
		startedAt = &s
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &s
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Turn, r.FromPhase, r.ToPhase, r.Status, r.Handoffs, r.Error,
		startedAt, completedAt, r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetPhaseRuns returns phase runs, newest first, optionally by status.
func (s *Store) GetPhaseRuns(ctx context.Context, status string) ([]PhaseRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, turn, from_phase, to_phase, status, handoffs, error,
			started_at, completed_at, created_at
		FROM phase_runs
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY turn DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PhaseRun
	for rows.Next() {
		var r PhaseRun
		var startedAt, completedAt, createdAt sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Turn, &r.FromPhase, &r.ToPhase, &r.Status, &r.Handoffs, &r.Error,
			&startedAt, &completedAt, &createdAt,
		); err != nil {
			return nil, err
		}

		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
		if startedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
			r.StartedAt = &t
		}
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// IsPhaseRunComplete reports whether the transition out of a phase already
// completed for a turn.
func (s *Store) IsPhaseRunComplete(ctx context.Context, turn int, fromPhase string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM phase_runs
		WHERE turn = ? AND from_phase = ? AND status = 'completed'
	`, turn, fromPhase).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears every table. Demo server only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transactions", "handoffs", "save_points", "phase_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// GetAllTransactions returns the most recent transactions across nations.
func (s *Store) GetAllTransactions(ctx context.Context, limit int) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY seq DESC
		LIMIT ?
	`
	return s.queryTransactions(ctx, query, limit)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
