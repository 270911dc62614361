// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]generic.Transaction
	byTurn       map[turnKey][]generic.Transaction
	idempotency  map[string]bool
	savePoints   map[generic.NationID]generic.SavePoint
}

type key struct {
	NationID   generic.NationID
	ResourceID string
}

type turnKey struct {
	NationID generic.NationID
	Turn     generic.Turn
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]generic.Transaction),
		byTurn:       make(map[turnKey][]generic.Transaction),
		idempotency:  make(map[string]bool),
		savePoints:   make(map[generic.NationID]generic.SavePoint),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) {
	k := key{NationID: tx.NationID, ResourceID: tx.Resource.ResourceID()}
	m.transactions[k] = append(m.transactions[k], tx)
	tk := turnKey{NationID: tx.NationID, Turn: tx.Turn}
	m.byTurn[tk] = append(m.byTurn[tk], tx)
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, nation generic.NationID, resourceID string) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{NationID: nation, ResourceID: resourceID}
	result := make([]generic.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result, nil
}

func (m *Memory) LoadTurn(_ context.Context, nation generic.NationID, turn generic.Turn) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tk := turnKey{NationID: nation, Turn: turn}
	result := make([]generic.Transaction, len(m.byTurn[tk]))
	copy(result, m.byTurn[tk])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// SAVE POINTS
// =============================================================================

func (m *Memory) SaveSavePoint(_ context.Context, sp generic.SavePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.savePoints[sp.NationID]; ok && prev.Turn > sp.Turn {
		return nil
	}
	m.savePoints[sp.NationID] = sp
	return nil
}

func (m *Memory) LatestSavePoint(_ context.Context, nation generic.NationID) (*generic.SavePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp, ok := m.savePoints[nation]
	if !ok {
		return nil, nil
	}
	return &sp, nil
}
