package store

import "time"

// User is an identity known to the engine. Wallet balances live in the
// wallet ledger, never here, so the two can not drift apart.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// StageRecord is one accepted funnel transition. Records are append-only;
// a lead's current stage is always the last record.
type StageRecord struct {
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}

// Lead is a potential customer owned by a user. Leads are never deleted,
// only moved to a terminal stage.
type Lead struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Name      string        `json:"name"`
	Phone     string        `json:"phone"`
	Email     string        `json:"email,omitempty"`
	Source    string        `json:"source,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	Stages    []StageRecord `json:"stages"`
	CreatedAt time.Time     `json:"created_at"`
}

// CurrentStage returns the lead's current funnel stage, derived from the
// last stage record.
func (l *Lead) CurrentStage() string {
	if len(l.Stages) == 0 {
		return ""
	}
	return l.Stages[len(l.Stages)-1].Stage
}

// Message is a single conversation turn.
type Message struct {
	Sender string    `json:"sender"` // "lead" or "agent"
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Conversation is the immutable message history for a lead. The rating is
// the only post-hoc mutation and is applied at most once.
type Conversation struct {
	ID       string     `json:"id"`
	LeadID   string     `json:"lead_id"`
	UserID   string     `json:"user_id"`
	Messages []Message  `json:"messages"`
	Rating   int        `json:"rating,omitempty"`
	RatedAt  *time.Time `json:"rated_at,omitempty"`
}

// PatternRecord is the persisted form of a learned reply pattern.
type PatternRecord struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Trigger   string    `json:"trigger"`
	Response  string    `json:"response"`
	Weight    float64   `json:"weight"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}
