package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory wallet.Store for manager tests.
type memStore struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []Entry
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[string]int64)}
}

func (s *memStore) EnsureUser(_ context.Context, userID string, initial int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = initial
	}
	return s.balances[userID], nil
}

func (s *memStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *memStore) Debit(_ context.Context, userID string, amount int64, op OpKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[userID] < amount {
		return 0, ErrInsufficientFunds
	}
	s.balances[userID] -= amount
	s.entries = append(s.entries, Entry{UserID: userID, Op: op, Amount: amount, Outcome: OutcomeCommitted})
	return s.balances[userID], nil
}

func (s *memStore) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	s.entries = append(s.entries, Entry{UserID: userID, Amount: amount, Outcome: OutcomeCredit})
	return s.balances[userID], nil
}

func (s *memStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) ListRecent(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) outcomes(userID string) []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outcome
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e.Outcome)
		}
	}
	return out
}

func TestReserveCommitDebitsOnce(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	ctx := context.Background()

	id, err := m.Reserve(ctx, "u1", 20, OpHunt)
	require.NoError(t, err)

	balance, err := m.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)

	// second commit is a no-op
	balance, err = m.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)

	final, err := m.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), final)
}

func TestReserveInsufficientFunds(t *testing.T) {
	m := NewManager(newMemStore(), 10)
	ctx := context.Background()

	_, err := m.Reserve(ctx, "u1", 20, OpHunt)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// no mutation happened
	balance, err := m.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestRollbackRestoresReservableBalance(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, 20)
	ctx := context.Background()

	id, err := m.Reserve(ctx, "u1", 20, OpHunt)
	require.NoError(t, err)

	// balance fully reserved
	_, err = m.Reserve(ctx, "u1", 1, OpChat)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, m.Rollback(ctx, id))

	// indistinguishable from the reservation never happening
	id2, err := m.Reserve(ctx, "u1", 20, OpHunt)
	require.NoError(t, err)
	balance, err := m.Commit(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	assert.Contains(t, store.outcomes("u1"), OutcomeRolledBack)
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	ctx := context.Background()

	id, err := m.Reserve(ctx, "u1", 20, OpHunt)
	require.NoError(t, err)
	_, err = m.Commit(ctx, id)
	require.NoError(t, err)

	require.NoError(t, m.Rollback(ctx, id))

	balance, err := m.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestCommitUnknownReservation(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	_, err := m.Commit(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	const racers = 10
	// 9 racers can afford 10 tokens each, the 10th cannot.
	m := NewManager(newMemStore(), 90)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, racers)
	failures := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.Reserve(ctx, "u1", 10, OpChat)
			if err != nil {
				failures <- err
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	close(failures)

	assert.Len(t, failures, 1)
	for err := range failures {
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	}

	var total int64
	for id := range ids {
		balance, err := m.Commit(ctx, id)
		require.NoError(t, err)
		total = balance
	}
	assert.Equal(t, int64(0), total)
}

func TestSettledReservationsLeaveThePendingMap(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	ctx := context.Background()

	committed, err := m.Reserve(ctx, "u1", 10, OpChat)
	require.NoError(t, err)
	_, err = m.Commit(ctx, committed)
	require.NoError(t, err)

	rolledBack, err := m.Reserve(ctx, "u1", 10, OpChat)
	require.NoError(t, err)
	require.NoError(t, m.Rollback(ctx, rolledBack))

	m.mu.Lock()
	pending := len(m.reservations)
	m.mu.Unlock()
	assert.Zero(t, pending, "settled reservations must not accumulate")

	// idempotency survives the move into the settled set
	balance, err := m.Commit(ctx, committed)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
	assert.NoError(t, m.Rollback(ctx, committed))
	_, err = m.Commit(ctx, rolledBack)
	assert.Error(t, err)
}

func TestSettledSetEvictsOldest(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	m.settledMax = 2
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		id, err := m.Reserve(ctx, "u1", 5, OpChat)
		require.NoError(t, err)
		_, err = m.Commit(ctx, id)
		require.NoError(t, err)
		ids[i] = id
	}

	// the oldest settlement is forgotten, the newer two are still known
	_, err := m.Commit(ctx, ids[0])
	assert.ErrorIs(t, err, ErrUnknownReservation)
	_, err = m.Commit(ctx, ids[1])
	assert.NoError(t, err)
	_, err = m.Commit(ctx, ids[2])
	assert.NoError(t, err)

	m.mu.Lock()
	settled := len(m.settled)
	m.mu.Unlock()
	assert.Equal(t, 2, settled)
}

func TestCreditTopsUp(t *testing.T) {
	m := NewManager(newMemStore(), 5)
	ctx := context.Background()

	balance, err := m.Credit(ctx, "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(55), balance)

	id, err := m.Reserve(ctx, "u1", 50, OpCampaign)
	require.NoError(t, err)
	balance, err = m.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestHistoryNewestFirst(t *testing.T) {
	m := NewManager(newMemStore(), 100)
	ctx := context.Background()

	id, err := m.Reserve(ctx, "u1", 2, OpChat)
	require.NoError(t, err)
	_, err = m.Commit(ctx, id)
	require.NoError(t, err)
	_, err = m.Credit(ctx, "u1", 10)
	require.NoError(t, err)

	entries, err := m.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, OutcomeCredit, entries[0].Outcome)
	assert.Equal(t, OutcomeCommitted, entries[1].Outcome)
}
