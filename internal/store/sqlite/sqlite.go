package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/brilliox/hunterpro/internal/store"
)

// Repository implements store.Repository backed by SQLite. Stage history
// and conversation messages are stored as JSON columns; both are
// append-only so the encoded form never needs partial updates.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) a SQLite repository at the supplied path.
func New(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	stages TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_leads_user ON leads(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	messages TEXT NOT NULL DEFAULT '[]',
	rating INTEGER NOT NULL DEFAULT 0,
	rated_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversations_lead ON conversations(lead_id);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	trigger_text TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL,
	weight REAL NOT NULL,
	samples INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_patterns_stage ON patterns(stage, weight DESC);
`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying resources.
func (r *Repository) Close() error {
	return r.db.Close()
}

// EnsureUser returns the user with the given id, creating it when missing.
func (r *Repository) EnsureUser(ctx context.Context, id string) (store.User, error) {
	if id == "" {
		return store.User{}, errors.New("user id required")
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, time.Now().UTC(),
	); err != nil {
		return store.User{}, fmt.Errorf("ensure user: %w", err)
	}
	var u store.User
	if err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.CreatedAt); err != nil {
		return store.User{}, fmt.Errorf("read user: %w", err)
	}
	return u, nil
}

// SaveLead inserts or replaces a lead.
func (r *Repository) SaveLead(ctx context.Context, lead store.Lead) error {
	stages, err := json.Marshal(lead.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	created := lead.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (id, user_id, name, phone, email, source, notes, stages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, email = excluded.email,
			source = excluded.source, notes = excluded.notes, stages = excluded.stages`,
		lead.ID, lead.UserID, lead.Name, lead.Phone, lead.Email, lead.Source, lead.Notes, string(stages), created,
	); err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}

// GetLead returns a lead by id.
func (r *Repository) GetLead(ctx context.Context, id string) (store.Lead, error) {
	var lead store.Lead
	var stages string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, phone, email, source, notes, stages, created_at FROM leads WHERE id = ?`, id,
	).Scan(&lead.ID, &lead.UserID, &lead.Name, &lead.Phone, &lead.Email, &lead.Source, &lead.Notes, &stages, &lead.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Lead{}, store.ErrNotFound
	}
	if err != nil {
		return store.Lead{}, fmt.Errorf("read lead: %w", err)
	}
	if err := json.Unmarshal([]byte(stages), &lead.Stages); err != nil {
		return store.Lead{}, fmt.Errorf("unmarshal stages: %w", err)
	}
	return lead, nil
}

// AppendStage appends a stage record to the lead's history.
func (r *Repository) AppendStage(ctx context.Context, leadID string, rec store.StageRecord) error {
	lead, err := r.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	lead.Stages = append(lead.Stages, rec)
	stages, err := json.Marshal(lead.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE leads SET stages = ? WHERE id = ?`, string(stages), leadID)
	if err != nil {
		return fmt.Errorf("append stage: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListLeads returns a user's leads, newest first.
func (r *Repository) ListLeads(ctx context.Context, userID string) ([]store.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, phone, email, source, notes, stages, created_at
		 FROM leads WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []store.Lead
	for rows.Next() {
		var lead store.Lead
		var stages string
		if err := rows.Scan(&lead.ID, &lead.UserID, &lead.Name, &lead.Phone, &lead.Email,
			&lead.Source, &lead.Notes, &stages, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if err := json.Unmarshal([]byte(stages), &lead.Stages); err != nil {
			return nil, fmt.Errorf("unmarshal stages: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// SaveConversation inserts or replaces a conversation.
func (r *Repository) SaveConversation(ctx context.Context, conv store.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, lead_id, user_id, messages, rating, rated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET messages = excluded.messages`,
		conv.ID, conv.LeadID, conv.UserID, string(messages), conv.Rating, conv.RatedAt,
	); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by id.
func (r *Repository) GetConversation(ctx context.Context, id string) (store.Conversation, error) {
	return r.getConversation(ctx, `SELECT id, lead_id, user_id, messages, rating, rated_at FROM conversations WHERE id = ?`, id)
}

// GetLeadConversation returns the conversation tied to a lead.
func (r *Repository) GetLeadConversation(ctx context.Context, leadID string) (store.Conversation, error) {
	return r.getConversation(ctx, `SELECT id, lead_id, user_id, messages, rating, rated_at FROM conversations WHERE lead_id = ? LIMIT 1`, leadID)
}

func (r *Repository) getConversation(ctx context.Context, query, arg string) (store.Conversation, error) {
	var conv store.Conversation
	var messages string
	var ratedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&conv.ID, &conv.LeadID, &conv.UserID, &messages, &conv.Rating, &ratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("read conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return store.Conversation{}, fmt.Errorf("unmarshal messages: %w", err)
	}
	if ratedAt.Valid {
		conv.RatedAt = &ratedAt.Time
	}
	return conv, nil
}

// AppendMessage appends one message to a conversation's history.
func (r *Repository) AppendMessage(ctx context.Context, conversationID string, msg store.Message) error {
	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, msg)
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET messages = ? WHERE id = ?`, string(messages), conversationID,
	); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// SetRating applies the one-time conversation rating. The guarded UPDATE
// makes the second rating attempt visible as ErrAlreadyRated.
func (r *Repository) SetRating(ctx context.Context, conversationID string, stars int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET rating = ?, rated_at = ? WHERE id = ? AND rating = 0`,
		stars, time.Now().UTC(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rating rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetConversation(ctx, conversationID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrAlreadyRated
	}
	return nil
}

// UpsertPattern inserts or updates a learned pattern.
func (r *Repository) UpsertPattern(ctx context.Context, p store.PatternRecord) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO patterns (id, stage, trigger_text, response, weight, samples, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			weight = excluded.weight, samples = excluded.samples, updated_at = excluded.updated_at`,
		p.ID, p.Stage, p.Trigger, p.Response, p.Weight, p.Samples, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// DeletePattern removes a pattern (cap eviction).
func (r *Repository) DeletePattern(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM patterns WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}

// ListPatterns returns all learned patterns.
func (r *Repository) ListPatterns(ctx context.Context) ([]store.PatternRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, stage, trigger_text, response, weight, samples, updated_at FROM patterns`,
	)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var records []store.PatternRecord
	for rows.Next() {
		var rec store.PatternRecord
		if err := rows.Scan(&rec.ID, &rec.Stage, &rec.Trigger, &rec.Response, &rec.Weight, &rec.Samples, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
