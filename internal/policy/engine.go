package policy

import (
	"context"
	"math/rand"
	"sync"

	"tradesim/internal/models"
)

// Engine turns the policy state into a win/loss decision for one user.
// It is a pure read of the store plus one random draw; it cannot fail.
type Engine struct {
	store *Store

	mu   sync.Mutex
	rand func() float64
}

func NewEngine(store *Store) *Engine {
	return &Engine{store: store, rand: rand.Float64}
}

// WithRand replaces the random source; tests use this to pin the draw.
func (e *Engine) WithRand(fn func() float64) *Engine {
	e.rand = fn
	return e
}

// Decide applies the layered policy: a non-expired per-user override wins
// verbatim, otherwise the global mode, with RANDOM drawing uniform [0,100)
// against the configured win probability.
func (e *Engine) Decide(ctx context.Context, userID string) models.Outcome {
	if forced, ok := e.store.EffectiveOutcome(ctx, userID); ok {
		return forced
	}
	mode, pct := e.store.Mode()
	switch mode {
	case models.ModeWin:
		return models.OutcomeWin
	case models.ModeLoss:
		return models.OutcomeLoss
	default:
		if e.draw()*100 < float64(pct) {
			return models.OutcomeWin
		}
		return models.OutcomeLoss
	}
}

func (e *Engine) draw() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand()
}
