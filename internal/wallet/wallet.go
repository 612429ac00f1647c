package wallet

import (
	"context"
	"errors"
	"time"
)

// OpKind identifies the gated operation a debit pays for.
type OpKind string

const (
	OpChat      OpKind = "chat"
	OpHunt      OpKind = "hunt"
	OpCampaign  OpKind = "campaign"
	OpAdCreate  OpKind = "ad_create"
	OpAdAnalyze OpKind = "ad_analyze"
	OpOptimize  OpKind = "optimize"
)

// Outcome records how a ledger entry was settled.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeCredit     Outcome = "credit"
)

// ErrInsufficientFunds is returned by Reserve when the user's available
// balance (balance minus open reservations) cannot cover the amount.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// ErrUnknownReservation is returned by Commit/Rollback for an id that was
// never issued by this manager.
var ErrUnknownReservation = errors.New("wallet: unknown reservation")

// Entry is a single record in the append-only audit trail. Entries are
// immutable once written.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Op        OpKind    `json:"op"`
	Amount    int64     `json:"amount"`
	Outcome   Outcome   `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines persistence behaviour for balances and the audit trail.
// Balance mutation happens only through Debit and Credit, each of which
// appends the matching ledger entry in the same transaction.
type Store interface {
	// EnsureUser creates the balance row with the initial amount when the
	// user is unknown, and returns the current balance either way.
	EnsureUser(ctx context.Context, userID string, initial int64) (int64, error)

	// Balance returns the user's current committed balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Debit decrements the balance and appends a committed entry, atomically.
	Debit(ctx context.Context, userID string, amount int64, op OpKind) (int64, error)

	// Credit increments the balance and appends a credit entry, atomically.
	Credit(ctx context.Context, userID string, amount int64) (int64, error)

	// Append writes an audit entry with no balance change (rollbacks).
	Append(ctx context.Context, entry Entry) error

	// ListRecent returns the newest entries for a user, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error)

	Close() error
}
