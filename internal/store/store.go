package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyRated is returned when a conversation rating is applied twice.
var ErrAlreadyRated = errors.New("store: conversation already rated")

// UserRepository persists engine users.
type UserRepository interface {
	// EnsureUser returns the user with the given id, creating it when
	// it does not exist yet.
	EnsureUser(ctx context.Context, id string) (User, error)
}

// LeadRepository persists leads and their stage history.
type LeadRepository interface {
	SaveLead(ctx context.Context, lead Lead) error
	GetLead(ctx context.Context, id string) (Lead, error)
	// AppendStage appends a stage record to the lead's history.
	AppendStage(ctx context.Context, leadID string, rec StageRecord) error
	ListLeads(ctx context.Context, userID string) ([]Lead, error)
}

// ConversationRepository persists per-lead conversation history.
type ConversationRepository interface {
	SaveConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	GetLeadConversation(ctx context.Context, leadID string) (Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg Message) error
	// SetRating applies the one-time rating; ErrAlreadyRated afterwards.
	SetRating(ctx context.Context, conversationID string, stars int) error
}

// PatternRepository persists learned reply patterns.
type PatternRepository interface {
	UpsertPattern(ctx context.Context, p PatternRecord) error
	DeletePattern(ctx context.Context, id string) error
	ListPatterns(ctx context.Context) ([]PatternRecord, error)
}

// Repository is the durable store the engine treats as the single source of
// truth for users, leads, conversations and learned patterns.
type Repository interface {
	UserRepository
	LeadRepository
	ConversationRepository
	PatternRepository
	Close() error
}
