package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliox/hunterpro/internal/wallet"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureUserSeedsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	balance, err := s.EnsureUser(ctx, "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// a different initial amount must not reseed
	balance, err = s.EnsureUser(ctx, "u1", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestDebitGuardsBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "u1", 30)
	require.NoError(t, err)

	balance, err := s.Debit(ctx, "u1", 20, wallet.OpHunt)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	_, err = s.Debit(ctx, "u1", 20, wallet.OpHunt)
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	balance, err = s.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "failed debit must not mutate")
}

func TestCreditAppendsEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "u1", 10)
	require.NoError(t, err)
	balance, err := s.Credit(ctx, "u1", 40)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	entries, err := s.ListRecent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.OutcomeCredit, entries[0].Outcome)
	assert.Equal(t, int64(40), entries[0].Amount)
}

func TestLedgerIsAppendOnlyAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "u1", 100)
	require.NoError(t, err)

	_, err = s.Debit(ctx, "u1", 2, wallet.OpChat)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, wallet.Entry{
		UserID: "u1", Op: wallet.OpHunt, Amount: 20, Outcome: wallet.OutcomeRolledBack,
	}))
	_, err = s.Debit(ctx, "u1", 20, wallet.OpHunt)
	require.NoError(t, err)

	entries, err := s.ListRecent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, wallet.OutcomeCommitted, entries[0].Outcome)
	assert.Equal(t, wallet.OutcomeRolledBack, entries[1].Outcome)
	assert.Equal(t, wallet.OpChat, entries[2].Op)

	// the rolled back entry is an audit record, not a balance change
	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(78), balance)
}

func TestListRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "u1", 100)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = s.Debit(ctx, "u1", 2, wallet.OpChat)
		require.NoError(t, err)
	}

	entries, err := s.ListRecent(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
