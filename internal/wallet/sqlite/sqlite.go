package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/brilliox/hunterpro/internal/wallet"
)

// Store implements wallet.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite wallet store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create wallet directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS balances (
	user_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL CHECK(balance >= 0),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	op TEXT NOT NULL,
	amount INTEGER NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('committed','rolled_back','credit')),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created ON ledger_entries(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureUser creates the balance row when missing and returns the balance.
func (s *Store) EnsureUser(ctx context.Context, userID string, initial int64) (int64, error) {
	if userID == "" {
		return 0, errors.New("wallet store requires user id")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO balances (user_id, balance) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, initial,
	); err != nil {
		return 0, fmt.Errorf("ensure balance row: %w", err)
	}
	return s.Balance(ctx, userID)
}

// Balance returns the user's committed balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("unknown user %q", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Debit decrements the balance and appends a committed entry atomically.
// The guarded UPDATE keeps the non-negative invariant even if the caller's
// solvency check raced a concurrent writer in another process.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, op wallet.OpKind) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin debit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance - ? WHERE user_id = ? AND balance >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return 0, wallet.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (user_id, op, amount, outcome, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, string(op), amount, string(wallet.OutcomeCommitted), time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("append committed entry: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance after debit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit debit tx: %w", err)
	}
	return balance, nil
}

// Credit increments the balance and appends a credit entry atomically.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance + ? WHERE user_id = ?`,
		amount, userID,
	); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (user_id, op, amount, outcome, created_at) VALUES (?, '', ?, ?, ?)`,
		userID, amount, string(wallet.OutcomeCredit), time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("append credit entry: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance after credit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit tx: %w", err)
	}
	return balance, nil
}

// Append writes an audit entry with no balance change.
func (s *Store) Append(ctx context.Context, entry wallet.Entry) error {
	if entry.UserID == "" {
		return errors.New("ledger entry requires user id")
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (user_id, op, amount, outcome, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.UserID, string(entry.Op), entry.Amount, string(entry.Outcome), created,
	); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for a user, newest first.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]wallet.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, op, amount, outcome, created_at
		 FROM ledger_entries WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []wallet.Entry
	for rows.Next() {
		var e wallet.Entry
		var op, outcome string
		if err := rows.Scan(&e.ID, &e.UserID, &op, &e.Amount, &outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Op = wallet.OpKind(op)
		e.Outcome = wallet.Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
