package funnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brilliox/hunterpro/internal/store"
)

// Tracker owns all funnel stage mutations. Transitions for a given lead are
// serialized so that of two concurrent attempts exactly one wins and the
// other is re-validated against the now-current stage.
type Tracker struct {
	leads store.LeadRepository

	locks sync.Map // lead id -> *sync.Mutex
}

// NewTracker creates a Tracker over the given lead repository.
func NewTracker(leads store.LeadRepository) *Tracker {
	return &Tracker{leads: leads}
}

func (t *Tracker) leadLock(leadID string) *sync.Mutex {
	mu, _ := t.locks.LoadOrStore(leadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Advance moves a lead to target and appends an immutable stage record.
// Only the immediate successor on the happy path is accepted, plus lost from
// any non-terminal stage. Calls on a lead already closed or lost fail so
// callers can detect stale state.
func (t *Tracker) Advance(ctx context.Context, leadID string, target Stage) (Stage, error) {
	if !target.Valid() {
		return "", fmt.Errorf("funnel: unknown stage %q", target)
	}

	mu := t.leadLock(leadID)
	mu.Lock()
	defer mu.Unlock()

	lead, err := t.leads.GetLead(ctx, leadID)
	if err != nil {
		return "", fmt.Errorf("funnel: load lead: %w", err)
	}

	current := Stage(lead.CurrentStage())
	if !CanAdvance(current, target) {
		return "", &ErrInvalidTransition{From: current, To: target}
	}

	rec := store.StageRecord{Stage: string(target), At: time.Now().UTC()}
	if err := t.leads.AppendStage(ctx, leadID, rec); err != nil {
		return "", fmt.Errorf("funnel: append stage: %w", err)
	}

	log.Debug().
		Str("lead_id", leadID).
		Str("from", string(current)).
		Str("to", string(target)).
		Msg("funnel stage advanced")

	return target, nil
}

// Current returns the lead's current stage.
func (t *Tracker) Current(ctx context.Context, leadID string) (Stage, error) {
	lead, err := t.leads.GetLead(ctx, leadID)
	if err != nil {
		return "", fmt.Errorf("funnel: load lead: %w", err)
	}
	return Stage(lead.CurrentStage()), nil
}
