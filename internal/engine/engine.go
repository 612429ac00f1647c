// Package engine is the orchestration façade. It owns the order of
// operations for every token-gated request: rate check, wallet reserve,
// provider chain attempt, then commit or rollback. Nothing else in the
// codebase touches more than one of those concerns at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brilliox/hunterpro/internal/funnel"
	"github.com/brilliox/hunterpro/internal/hunt"
	"github.com/brilliox/hunterpro/internal/learning"
	"github.com/brilliox/hunterpro/internal/provider"
	"github.com/brilliox/hunterpro/internal/ratelimit"
	"github.com/brilliox/hunterpro/internal/store"
	"github.com/brilliox/hunterpro/internal/wallet"
)

// ErrInvalidRating is returned when a star rating falls outside 1-5. The
// rating is checked before anything is persisted: a stored rating marks the
// conversation as permanently rated, so a bad value must never reach the
// repository.
var ErrInvalidRating = errors.New("engine: rating must be 1-5")

// RateLimitedError is returned when a client is inside its block cooldown
// or has exhausted its window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("engine: rate limited, retry after %s", e.RetryAfter)
}

// Config wires the engine's collaborators and tunables.
type Config struct {
	Limiter     *ratelimit.Limiter
	Wallet      *wallet.Manager
	ChatChain   *provider.Chain
	SearchChain *provider.Chain
	Tracker     *funnel.Tracker
	Learner     *learning.Learner
	Repo        store.Repository

	// Costs maps operation names (chat, hunt, ...) to token amounts.
	Costs map[string]int64

	CacheTTL     time.Duration
	CacheEntries int
}

// Engine orchestrates token-gated operations.
type Engine struct {
	limiter *ratelimit.Limiter
	wallet  *wallet.Manager
	chat    *provider.Chain
	search  *provider.Chain
	tracker *funnel.Tracker
	learner *learning.Learner
	repo    store.Repository
	costs   map[string]int64
	cache   *replyCache
}

// New creates the engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Limiter == nil:
		return nil, errors.New("engine: limiter required")
	case cfg.Wallet == nil:
		return nil, errors.New("engine: wallet required")
	case cfg.ChatChain == nil:
		return nil, errors.New("engine: chat chain required")
	case cfg.SearchChain == nil:
		return nil, errors.New("engine: search chain required")
	case cfg.Tracker == nil:
		return nil, errors.New("engine: funnel tracker required")
	case cfg.Learner == nil:
		return nil, errors.New("engine: learner required")
	case cfg.Repo == nil:
		return nil, errors.New("engine: repository required")
	}
	costs := cfg.Costs
	if costs == nil {
		costs = map[string]int64{"chat": 2, "hunt": 20}
	}
	return &Engine{
		limiter: cfg.Limiter,
		wallet:  cfg.Wallet,
		chat:    cfg.ChatChain,
		search:  cfg.SearchChain,
		tracker: cfg.Tracker,
		learner: cfg.Learner,
		repo:    cfg.Repo,
		costs:   costs,
		cache:   newReplyCache(cfg.CacheTTL, cfg.CacheEntries),
	}, nil
}

func (e *Engine) cost(op string) int64 {
	if c, ok := e.costs[op]; ok {
		return c
	}
	return e.costs["chat"]
}

func (e *Engine) checkRate(ctx context.Context, clientKey string) error {
	d := e.limiter.Check(ctx, clientKey)
	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// rollback is the shared failure path; rollback errors are logged, never
// surfaced over the original failure.
func (e *Engine) rollback(ctx context.Context, reservationID string) {
	if err := e.wallet.Rollback(ctx, reservationID); err != nil {
		log.Warn().Err(err).Str("reservation_id", reservationID).Msg("rollback failed")
	}
}

// ChatResult is the outcome of DoChat.
type ChatResult struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Provider       string `json:"provider"`
	Balance        int64  `json:"balance"`
	Cached         bool   `json:"cached"`
}

// DoChat answers a user message through the chat chain. Tokens are reserved
// up front and committed only after a reply is produced; cache hits still
// commit since the caller received the service either way.
func (e *Engine) DoChat(ctx context.Context, userID, clientKey, message, conversationID string) (ChatResult, error) {
	if err := e.checkRate(ctx, clientKey); err != nil {
		return ChatResult{}, err
	}

	resID, err := e.wallet.Reserve(ctx, userID, e.cost("chat"), wallet.OpChat)
	if err != nil {
		return ChatResult{}, err
	}

	key := cacheKey(chatSystemPrompt, message)
	if reply, prov, ok := e.cache.get(key); ok {
		balance, err := e.wallet.Commit(ctx, resID)
		if err != nil {
			return ChatResult{}, fmt.Errorf("engine: commit: %w", err)
		}
		convID, perr := e.persistTurn(ctx, userID, conversationID, message, reply)
		if perr != nil {
			log.Warn().Err(perr).Msg("persist chat turn failed")
		}
		return ChatResult{ConversationID: convID, Reply: reply, Provider: prov, Balance: balance, Cached: true}, nil
	}

	res, err := e.chat.Attempt(ctx, provider.Payload{
		Prompt: message,
		System: chatSystemPrompt,
	})
	if err != nil {
		e.rollback(ctx, resID)
		return ChatResult{}, err
	}

	balance, err := e.wallet.Commit(ctx, resID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("engine: commit: %w", err)
	}
	e.cache.put(key, res.Text, res.Provider)

	convID, perr := e.persistTurn(ctx, userID, conversationID, message, res.Text)
	if perr != nil {
		log.Warn().Err(perr).Msg("persist chat turn failed")
	}

	return ChatResult{
		ConversationID: convID,
		Reply:          res.Text,
		Provider:       res.Provider,
		Balance:        balance,
	}, nil
}

// persistTurn appends a lead message and the agent reply to a conversation,
// creating the conversation when conversationID is empty.
func (e *Engine) persistTurn(ctx context.Context, userID, conversationID, message, reply string) (string, error) {
	now := time.Now().UTC()
	turn := []store.Message{
		{Sender: "lead", Text: message, At: now},
		{Sender: "agent", Text: reply, At: now},
	}

	if conversationID == "" {
		conv := store.Conversation{
			ID:       uuid.NewString(),
			UserID:   userID,
			Messages: turn,
		}
		if err := e.repo.SaveConversation(ctx, conv); err != nil {
			return "", err
		}
		return conv.ID, nil
	}

	for _, msg := range turn {
		if err := e.repo.AppendMessage(ctx, conversationID, msg); err != nil {
			return conversationID, err
		}
	}
	return conversationID, nil
}

// HuntResult is the outcome of DoHunt.
type HuntResult struct {
	Query      string           `json:"query"`
	Provider   string           `json:"provider"`
	Candidates []hunt.Candidate `json:"candidates"`
	LeadIDs    []string         `json:"lead_ids"`
	Balance    int64            `json:"balance"`
}

// DoHunt runs a lead hunt: build the dorked search query, run the search
// chain, extract contacts, and persist each candidate as a lead at the
// first funnel stage. The full hunt cost is committed even when extraction
// finds nothing, since the search itself was served.
func (e *Engine) DoHunt(ctx context.Context, userID, clientKey, query, city, strategy, country string) (HuntResult, error) {
	if err := e.checkRate(ctx, clientKey); err != nil {
		return HuntResult{}, err
	}

	resID, err := e.wallet.Reserve(ctx, userID, e.cost("hunt"), wallet.OpHunt)
	if err != nil {
		return HuntResult{}, err
	}

	if country == "" {
		country = hunt.DetectCountry(city)
	}
	golden := hunt.GoldenQuery(query, city, strategy, country)
	payload := provider.Payload{
		Query:      golden,
		Geo:        hunt.Geo(country),
		Lang:       "ar",
		MaxResults: 10,
	}

	res, err := e.search.Attempt(ctx, payload)
	if err != nil {
		e.rollback(ctx, resID)
		return HuntResult{}, err
	}

	candidates := hunt.ExtractCandidates(res.Results, country)
	usedQuery := golden

	// The dorked query can be too narrow; loosen it before giving up.
	if len(candidates) == 0 {
		for _, fallback := range hunt.FallbackQueries(query, city, country) {
			payload.Query = fallback
			fres, ferr := e.search.Attempt(ctx, payload)
			if ferr != nil {
				continue
			}
			if candidates = hunt.ExtractCandidates(fres.Results, country); len(candidates) > 0 {
				res = fres
				usedQuery = fallback
				break
			}
		}
	}

	// Per-lead save failures drop that lead but keep the hunt: the refund
	// and the persisted outcome must agree, so the reservation is refunded
	// only when nothing was persisted at all.
	leadIDs := make([]string, 0, len(candidates))
	var saveErr error
	for _, c := range candidates {
		lead := store.Lead{
			ID:     uuid.NewString(),
			UserID: userID,
			Name:   c.Name,
			Phone:  c.Phone,
			Email:  c.Email,
			Source: c.Source,
			Notes:  c.Notes,
			Stages: []store.StageRecord{{
				Stage: string(funnel.StageBaitSent),
				At:    time.Now().UTC(),
			}},
		}
		if err := e.repo.SaveLead(ctx, lead); err != nil {
			saveErr = err
			log.Warn().Err(err).Str("user_id", userID).Msg("lead save failed")
			continue
		}
		leadIDs = append(leadIDs, lead.ID)
	}
	if len(candidates) > 0 && len(leadIDs) == 0 {
		e.rollback(ctx, resID)
		return HuntResult{}, fmt.Errorf("engine: save leads: %w", saveErr)
	}

	balance, err := e.wallet.Commit(ctx, resID)
	if err != nil {
		return HuntResult{}, fmt.Errorf("engine: commit: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("country", country).
		Int("candidates", len(candidates)).
		Str("provider", res.Provider).
		Msg("hunt completed")

	return HuntResult{
		Query:      usedQuery,
		Provider:   res.Provider,
		Candidates: candidates,
		LeadIDs:    leadIDs,
		Balance:    balance,
	}, nil
}

// AdvanceFunnel moves a lead to the target stage. When a star rating is
// supplied and the lead reaches a terminal stage, the lead's conversation
// is rated once and fed to the learner.
func (e *Engine) AdvanceFunnel(ctx context.Context, leadID string, target funnel.Stage, stars int) (funnel.Stage, error) {
	if stars != 0 && (stars < 1 || stars > 5) {
		return "", ErrInvalidRating
	}

	stage, err := e.tracker.Advance(ctx, leadID, target)
	if err != nil {
		return "", err
	}

	if stars > 0 && stage.Terminal() {
		conv, err := e.repo.GetLeadConversation(ctx, leadID)
		if errors.Is(err, store.ErrNotFound) {
			return stage, nil
		}
		if err != nil {
			return stage, fmt.Errorf("engine: load conversation: %w", err)
		}
		if err := e.rateAndLearn(ctx, conv, stars); err != nil && !errors.Is(err, store.ErrAlreadyRated) {
			return stage, err
		}
	}
	return stage, nil
}

func (e *Engine) rateAndLearn(ctx context.Context, conv store.Conversation, stars int) error {
	if stars < 1 || stars > 5 {
		return ErrInvalidRating
	}
	if err := e.repo.SetRating(ctx, conv.ID, stars); err != nil {
		return err
	}
	if _, err := e.learner.Learn(ctx, conv, stars); err != nil {
		return fmt.Errorf("engine: learn: %w", err)
	}
	return nil
}

// SuggestResult is the outcome of SuggestReply.
type SuggestResult struct {
	Reply      string       `json:"reply"`
	Stage      funnel.Stage `json:"stage"`
	Provider   string       `json:"provider,omitempty"`
	PatternIDs []string     `json:"pattern_ids,omitempty"`
	Balance    int64        `json:"balance"`
	// Degraded is set when every provider failed and the stage's stock
	// reply was returned instead; no tokens were charged.
	Degraded bool `json:"degraded,omitempty"`
}

// SuggestReply generates the next funnel message for a lead. Learned
// patterns for the lead's current stage are merged into the prompt as
// hints. When the whole chain fails, the reservation is rolled back and the
// stage's stock reply is returned uncharged.
func (e *Engine) SuggestReply(ctx context.Context, userID, clientKey, leadID string) (SuggestResult, error) {
	if err := e.checkRate(ctx, clientKey); err != nil {
		return SuggestResult{}, err
	}

	lead, err := e.repo.GetLead(ctx, leadID)
	if err != nil {
		return SuggestResult{}, fmt.Errorf("engine: load lead: %w", err)
	}
	stage := funnel.Stage(lead.CurrentStage())

	var lastMessage string
	conv, err := e.repo.GetLeadConversation(ctx, leadID)
	if err == nil {
		for i := len(conv.Messages) - 1; i >= 0; i-- {
			if conv.Messages[i].Sender == "lead" {
				lastMessage = conv.Messages[i].Text
				break
			}
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return SuggestResult{}, fmt.Errorf("engine: load conversation: %w", err)
	}

	patterns := e.learner.Suggest(stage)
	hints := make([]string, 0, len(patterns))
	patternIDs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		hints = append(hints, p.Response)
		patternIDs = append(patternIDs, p.ID)
	}

	resID, err := e.wallet.Reserve(ctx, userID, e.cost("chat"), wallet.OpChat)
	if err != nil {
		return SuggestResult{}, err
	}

	res, err := e.chat.Attempt(ctx, provider.Payload{
		Prompt:   buildReplyPrompt(stage, lastMessage, hints),
		System:   salesSystemPrompt,
		Patterns: hints,
	})
	if err != nil {
		e.rollback(ctx, resID)
		if !errors.Is(err, provider.ErrAllProvidersFailed) {
			return SuggestResult{}, err
		}
		balance, berr := e.wallet.Balance(ctx, userID)
		if berr != nil {
			return SuggestResult{}, fmt.Errorf("engine: balance: %w", berr)
		}
		return SuggestResult{
			Reply:    learning.DefaultReply(stage),
			Stage:    stage,
			Balance:  balance,
			Degraded: true,
		}, nil
	}

	balance, err := e.wallet.Commit(ctx, resID)
	if err != nil {
		return SuggestResult{}, fmt.Errorf("engine: commit: %w", err)
	}

	if conv.ID != "" {
		if err := e.repo.AppendMessage(ctx, conv.ID, store.Message{
			Sender: "agent",
			Text:   res.Text,
			At:     time.Now().UTC(),
		}); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("persist suggested reply failed")
		}
	}

	return SuggestResult{
		Reply:      res.Text,
		Stage:      stage,
		Provider:   res.Provider,
		PatternIDs: patternIDs,
		Balance:    balance,
	}, nil
}

// RateConversation applies a one-time rating and feeds the learner.
func (e *Engine) RateConversation(ctx context.Context, conversationID string, stars int) error {
	conv, err := e.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("engine: load conversation: %w", err)
	}
	return e.rateAndLearn(ctx, conv, stars)
}

// Credit tops up a user's balance and returns the new balance.
func (e *Engine) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	return e.wallet.Credit(ctx, userID, amount)
}

// Balance returns a user's committed balance.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	return e.wallet.Balance(ctx, userID)
}

// History returns a user's most recent ledger entries.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]wallet.Entry, error) {
	return e.wallet.History(ctx, userID, limit)
}

// Leads lists a user's leads, newest first.
func (e *Engine) Leads(ctx context.Context, userID string) ([]store.Lead, error) {
	return e.repo.ListLeads(ctx, userID)
}

// LearningStats reports per-stage pattern counts and average weights.
func (e *Engine) LearningStats() map[funnel.Stage]learning.StageStats {
	return e.learner.Stats()
}
