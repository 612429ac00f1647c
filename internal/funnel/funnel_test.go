package funnel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliox/hunterpro/internal/store"
)

// memLeads is an in-memory store.LeadRepository for tracker tests.
type memLeads struct {
	mu    sync.Mutex
	leads map[string]store.Lead
}

func newMemLeads(leads ...store.Lead) *memLeads {
	m := &memLeads{leads: make(map[string]store.Lead)}
	for _, l := range leads {
		m.leads[l.ID] = l
	}
	return m
}

func (m *memLeads) SaveLead(_ context.Context, lead store.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[lead.ID] = lead
	return nil
}

func (m *memLeads) GetLead(_ context.Context, id string) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return store.Lead{}, store.ErrNotFound
	}
	return lead, nil
}

func (m *memLeads) AppendStage(_ context.Context, leadID string, rec store.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return store.ErrNotFound
	}
	lead.Stages = append(lead.Stages, rec)
	m.leads[leadID] = lead
	return nil
}

func (m *memLeads) ListLeads(_ context.Context, userID string) ([]store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Lead
	for _, l := range m.leads {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func leadAt(id string, stages ...Stage) store.Lead {
	lead := store.Lead{ID: id, UserID: "u1"}
	for _, s := range stages {
		lead.Stages = append(lead.Stages, store.StageRecord{Stage: string(s), At: time.Now().UTC()})
	}
	return lead
}

func TestAdvanceHappyPath(t *testing.T) {
	leads := newMemLeads(leadAt("l1", StageBaitSent))
	tr := NewTracker(leads)
	ctx := context.Background()

	path := []Stage{StageReplied, StageInterested, StageNegotiating, StageHot, StageClosed}
	for _, target := range path {
		got, err := tr.Advance(ctx, "l1", target)
		require.NoError(t, err)
		assert.Equal(t, target, got)
	}

	lead, _ := leads.GetLead(ctx, "l1")
	assert.Len(t, lead.Stages, 6) // bait_sent plus five transitions
}

func TestAdvanceRejectsSkip(t *testing.T) {
	tr := NewTracker(newMemLeads(leadAt("l1", StageBaitSent)))

	_, err := tr.Advance(context.Background(), "l1", StageHot)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StageBaitSent, invalid.From)
	assert.Equal(t, StageHot, invalid.To)
}

func TestAdvanceLostFromAnywhere(t *testing.T) {
	for _, from := range []Stage{StageBaitSent, StageReplied, StageInterested, StageNegotiating, StageHot} {
		t.Run(string(from), func(t *testing.T) {
			tr := NewTracker(newMemLeads(leadAt("l1", from)))
			got, err := tr.Advance(context.Background(), "l1", StageLost)
			require.NoError(t, err)
			assert.Equal(t, StageLost, got)
		})
	}
}

func TestAdvanceRejectsTerminal(t *testing.T) {
	for _, terminal := range []Stage{StageClosed, StageLost} {
		t.Run(string(terminal), func(t *testing.T) {
			tr := NewTracker(newMemLeads(leadAt("l1", StageBaitSent, terminal)))
			_, err := tr.Advance(context.Background(), "l1", StageLost)
			var invalid *ErrInvalidTransition
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestAdvanceRejectsUnknownStage(t *testing.T) {
	tr := NewTracker(newMemLeads(leadAt("l1", StageBaitSent)))
	_, err := tr.Advance(context.Background(), "l1", Stage("warp"))
	assert.Error(t, err)
}

func TestAdvanceMissingLead(t *testing.T) {
	tr := NewTracker(newMemLeads())
	_, err := tr.Advance(context.Background(), "nope", StageReplied)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentAdvanceExactlyOneWins(t *testing.T) {
	leads := newMemLeads(leadAt("l1", StageBaitSent))
	tr := NewTracker(leads)
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Advance(ctx, "l1", StageReplied)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			var invalid *ErrInvalidTransition
			assert.ErrorAs(t, err, &invalid)
		}
	}
	assert.Equal(t, 1, wins)

	lead, _ := leads.GetLead(ctx, "l1")
	assert.Len(t, lead.Stages, 2)
}

func TestStageHelpers(t *testing.T) {
	assert.True(t, StageClosed.Terminal())
	assert.True(t, StageLost.Terminal())
	assert.False(t, StageHot.Terminal())

	assert.Equal(t, StageReplied, StageBaitSent.Next())
	assert.Equal(t, Stage(""), StageClosed.Next())

	assert.True(t, CanAdvance(StageHot, StageClosed))
	assert.True(t, CanAdvance(StageReplied, StageLost))
	assert.False(t, CanAdvance(StageReplied, StageHot))
	assert.False(t, CanAdvance(StageLost, StageReplied))
	assert.False(t, CanAdvance(StageClosed, StageLost))
}

func TestCanAdvanceFromEmptyOrUnknownStage(t *testing.T) {
	// a lead with no stage history enters the funnel at bait_sent, nowhere else
	assert.True(t, CanAdvance("", StageBaitSent))
	assert.False(t, CanAdvance("", StageReplied))
	assert.False(t, CanAdvance("", StageLost))

	// a corrupt stage rejects everything, including lost
	assert.False(t, CanAdvance("warm", StageReplied))
	assert.False(t, CanAdvance("warm", StageLost))
}
