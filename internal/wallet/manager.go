package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type reservationState int

const (
	statePending reservationState = iota
	stateCommitted
	stateRolledBack
)

type reservation struct {
	id     string
	userID string
	op     OpKind
	amount int64
	state  reservationState
}

// settledCap bounds how many settled reservations are remembered for
// idempotent Commit and Rollback. Settlements older than the newest
// settledCap are forgotten and report ErrUnknownReservation.
const settledCap = 4096

// Manager implements the reserve/commit/rollback protocol on top of a Store.
// All operations on a given user are serialized through a per-user lock so
// two concurrent reservations can never both pass the solvency check against
// a stale balance. Operations on different users proceed independently.
type Manager struct {
	store          Store
	defaultBalance int64

	userLocks sync.Map // user id -> *sync.Mutex

	mu           sync.Mutex
	reservations map[string]*reservation // pending only
	openByUser   map[string]int64        // sum of pending amounts per user

	// Settled reservations move into a bounded FIFO set so repeated
	// Commit/Rollback calls stay idempotent without the map growing with
	// every request served.
	settled     map[string]*reservation
	settledIDs  []string
	settledNext int
	settledMax  int
}

// NewManager creates a wallet Manager. New users are seeded with
// defaultBalance tokens on first contact.
func NewManager(store Store, defaultBalance int64) *Manager {
	return &Manager{
		store:          store,
		defaultBalance: defaultBalance,
		reservations:   make(map[string]*reservation),
		openByUser:     make(map[string]int64),
		settled:        make(map[string]*reservation),
		settledMax:     settledCap,
	}
}

// lookup finds a reservation by id, pending or settled. Caller holds m.mu.
func (m *Manager) lookup(id string) (*reservation, bool) {
	if res, ok := m.reservations[id]; ok {
		return res, true
	}
	res, ok := m.settled[id]
	return res, ok
}

// settle moves a finished reservation out of the pending map and into the
// bounded settled set, evicting the oldest settlement when full. Caller
// holds m.mu.
func (m *Manager) settle(res *reservation) {
	delete(m.reservations, res.id)
	m.settled[res.id] = res
	if len(m.settledIDs) < m.settledMax {
		m.settledIDs = append(m.settledIDs, res.id)
		return
	}
	delete(m.settled, m.settledIDs[m.settledNext])
	m.settledIDs[m.settledNext] = res.id
	m.settledNext = (m.settledNext + 1) % m.settledMax
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	mu, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Reserve places a pending hold of amount tokens against the user's balance.
// It fails with ErrInsufficientFunds, and performs no mutation, when the
// balance minus already-open reservations cannot cover the amount.
func (m *Manager) Reserve(ctx context.Context, userID string, amount int64, op OpKind) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("wallet: invalid reservation amount %d", amount)
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := m.store.EnsureUser(ctx, userID, m.defaultBalance)
	if err != nil {
		return "", fmt.Errorf("wallet: ensure user: %w", err)
	}

	m.mu.Lock()
	open := m.openByUser[userID]
	if balance-open < amount {
		m.mu.Unlock()
		return "", ErrInsufficientFunds
	}

	res := &reservation{
		id:     uuid.NewString(),
		userID: userID,
		op:     op,
		amount: amount,
		state:  statePending,
	}
	m.reservations[res.id] = res
	m.openByUser[userID] = open + amount
	m.mu.Unlock()

	log.Debug().
		Str("user_id", userID).
		Str("reservation_id", res.id).
		Str("op", string(op)).
		Int64("amount", amount).
		Msg("tokens reserved")

	return res.id, nil
}

// Commit converts a reservation into a permanent debit and appends the
// committed ledger entry. Calling Commit twice on the same id is a no-op.
func (m *Manager) Commit(ctx context.Context, reservationID string) (int64, error) {
	m.mu.Lock()
	res, ok := m.lookup(reservationID)
	m.mu.Unlock()
	if !ok {
		return 0, ErrUnknownReservation
	}

	lock := m.userLock(res.userID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	switch res.state {
	case stateCommitted:
		m.mu.Unlock()
		return m.store.Balance(ctx, res.userID)
	case stateRolledBack:
		m.mu.Unlock()
		return 0, fmt.Errorf("wallet: reservation %s already rolled back", reservationID)
	}
	res.state = stateCommitted
	m.openByUser[res.userID] -= res.amount
	if m.openByUser[res.userID] <= 0 {
		delete(m.openByUser, res.userID)
	}
	m.settle(res)
	m.mu.Unlock()

	balance, err := m.store.Debit(ctx, res.userID, res.amount, res.op)
	if err != nil {
		return 0, fmt.Errorf("wallet: debit: %w", err)
	}

	log.Debug().
		Str("user_id", res.userID).
		Str("reservation_id", reservationID).
		Int64("amount", res.amount).
		Int64("balance", balance).
		Msg("reservation committed")

	return balance, nil
}

// Rollback discards a pending reservation with no balance change. The
// discarded hold is still recorded in the audit trail. Rollback after
// Commit, or a second Rollback, is a no-op.
func (m *Manager) Rollback(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	res, ok := m.lookup(reservationID)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownReservation
	}

	lock := m.userLock(res.userID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if res.state != statePending {
		m.mu.Unlock()
		return nil
	}
	res.state = stateRolledBack
	m.openByUser[res.userID] -= res.amount
	if m.openByUser[res.userID] <= 0 {
		delete(m.openByUser, res.userID)
	}
	m.settle(res)
	m.mu.Unlock()

	entry := Entry{
		UserID:    res.userID,
		Op:        res.op,
		Amount:    res.amount,
		Outcome:   OutcomeRolledBack,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Append(ctx, entry); err != nil {
		// The hold is already released; losing the audit row must not
		// fail the caller's rollback.
		log.Warn().Err(err).Str("reservation_id", reservationID).Msg("rollback audit write failed")
	}

	log.Debug().
		Str("user_id", res.userID).
		Str("reservation_id", reservationID).
		Int64("amount", res.amount).
		Msg("reservation rolled back")

	return nil
}

// Credit adds amount tokens to the user's balance (top-up).
func (m *Manager) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("wallet: invalid credit amount %d", amount)
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.EnsureUser(ctx, userID, m.defaultBalance); err != nil {
		return 0, fmt.Errorf("wallet: ensure user: %w", err)
	}
	balance, err := m.store.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("wallet: credit: %w", err)
	}
	return balance, nil
}

// Balance returns the user's committed balance, seeding new users.
func (m *Manager) Balance(ctx context.Context, userID string) (int64, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return m.store.EnsureUser(ctx, userID, m.defaultBalance)
}

// Available returns the balance minus open reservations, for diagnostics.
func (m *Manager) Available(ctx context.Context, userID string) (int64, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := m.store.EnsureUser(ctx, userID, m.defaultBalance)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	open := m.openByUser[userID]
	m.mu.Unlock()
	return balance - open, nil
}

// History returns the newest ledger entries for a user.
func (m *Manager) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return m.store.ListRecent(ctx, userID, limit)
}
