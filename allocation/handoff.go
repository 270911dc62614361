package allocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/allocation-engine/economy"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// HANDOFF - What finalize tells the effect systems
// =============================================================================

// Handoff is the single record a category emits when it is finalized: how
// many units were committed and what they consumed. Recruitment, training,
// production and trade execution read these; the engine does not apply
// their effects itself.
type Handoff struct {
	ID         string
	NationID   generic.NationID
	Turn       generic.Turn
	CategoryID generic.CategoryID
	Kind       Kind
	Quantity   int64
	Requested  int64
	Consumed   generic.Cost

	Skill     economy.WorkerSkill
	Building  string
	Output    economy.Good
	Good      economy.Good
	Direction TradeDirection

	CreatedAt time.Time
}

// FinalizeResult is everything one nation's finalize produced.
type FinalizeResult struct {
	NationID   generic.NationID
	Turn       generic.Turn
	Handoffs   []Handoff
	Journal    []generic.Transaction
	Violations []error
}

// EffectSink receives handoffs once a turn's finalize is complete.
type EffectSink interface {
	Deliver(ctx context.Context, h Handoff) error
}

// EffectSinkFunc adapts a function to EffectSink.
type EffectSinkFunc func(ctx context.Context, h Handoff) error

func (f EffectSinkFunc) Deliver(ctx context.Context, h Handoff) error { return f(ctx, h) }

// MultiSink fans a handoff out to several sinks and joins their errors.
type MultiSink []EffectSink

func (m MultiSink) Deliver(ctx context.Context, h Handoff) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandoffStore persists handoff records.
type HandoffStore interface {
	SaveHandoffs(ctx context.Context, hs []Handoff) error
	ListHandoffs(ctx context.Context, nation generic.NationID, turn generic.Turn) ([]Handoff, error)
}

// =============================================================================
// EFFECT QUEUE - In-memory sink grouped by kind
// =============================================================================

// EffectQueue collects handoffs for effect systems that poll, one queue per
// kind. Safe for concurrent use.
type EffectQueue struct {
	mu     sync.Mutex
	byKind map[Kind][]Handoff
	all    []Handoff
}

func NewEffectQueue() *EffectQueue {
	return &EffectQueue{byKind: make(map[Kind][]Handoff)}
}

func (q *EffectQueue) Deliver(_ context.Context, h Handoff) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byKind[h.Kind] = append(q.byKind[h.Kind], h)
	q.all = append(q.all, h)
	return nil
}

// Drain removes and returns the pending handoffs of one kind.
func (q *EffectQueue) Drain(kind Kind) []Handoff {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.byKind[kind]
	delete(q.byKind, kind)
	return out
}

// All returns every handoff ever delivered, in delivery order.
func (q *EffectQueue) All() []Handoff {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Handoff, len(q.all))
	copy(out, q.all)
	return out
}
