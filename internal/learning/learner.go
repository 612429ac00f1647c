// Package learning mines reusable reply patterns from highly-rated past
// conversations and ranks them for reuse, so funnel replies improve as more
// conversations are reviewed.
package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brilliox/hunterpro/internal/funnel"
	"github.com/brilliox/hunterpro/internal/store"
)

// Pattern is a learned reply fragment with its success weight.
type Pattern struct {
	ID        string
	Stage     funnel.Stage
	Trigger   string
	Response  string
	Weight    float64
	Samples   int
	UpdatedAt time.Time
}

// Config holds the learner's tunables.
type Config struct {
	// SuccessThreshold is the minimum star rating for a conversation to
	// be mined at all (default 4).
	SuccessThreshold int
	// Decay is the EMA factor: merged weight = Decay*old + (1-Decay)*new,
	// so recent successes dominate without discarding history (default 0.85).
	Decay float64
	// MaxPerStage caps stored patterns per stage; the lowest-weight
	// pattern is evicted past the cap (default 50).
	MaxPerStage int
	// SuggestLimit bounds how many patterns Suggest returns (default 3).
	SuggestLimit int
}

func (c Config) withDefaults() Config {
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 4
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		c.Decay = 0.85
	}
	if c.MaxPerStage <= 0 {
		c.MaxPerStage = 50
	}
	if c.SuggestLimit <= 0 {
		c.SuggestLimit = 3
	}
	return c
}

// Learner owns all learned patterns. State is bounded: growth is capped per
// stage and eviction is by lowest weight, not age.
type Learner struct {
	cfg  Config
	repo store.PatternRepository // optional; nil keeps patterns in memory only

	mu       sync.RWMutex
	byStage  map[funnel.Stage][]*Pattern
	byKey    map[string]*Pattern // stage|normalized-response -> pattern
}

// NewLearner creates a Learner, loading persisted patterns when a
// repository is supplied.
func NewLearner(ctx context.Context, cfg Config, repo store.PatternRepository) (*Learner, error) {
	l := &Learner{
		cfg:     cfg.withDefaults(),
		repo:    repo,
		byStage: make(map[funnel.Stage][]*Pattern),
		byKey:   make(map[string]*Pattern),
	}
	if repo != nil {
		records, err := repo.ListPatterns(ctx)
		if err != nil {
			return nil, fmt.Errorf("learning: load patterns: %w", err)
		}
		for _, rec := range records {
			p := &Pattern{
				ID:        rec.ID,
				Stage:     funnel.Stage(rec.Stage),
				Trigger:   rec.Trigger,
				Response:  rec.Response,
				Weight:    rec.Weight,
				Samples:   rec.Samples,
				UpdatedAt: rec.UpdatedAt,
			}
			l.byStage[p.Stage] = append(l.byStage[p.Stage], p)
			l.byKey[patternKey(p.Stage, p.Response)] = p
		}
	}
	return l, nil
}

func patternKey(stage funnel.Stage, response string) string {
	return string(stage) + "|" + strings.ToLower(strings.Join(strings.Fields(response), " "))
}

// Learn mines a rated conversation for reply patterns. Conversations below
// the success threshold are ignored. Returns the number of patterns mined.
func (l *Learner) Learn(ctx context.Context, conv store.Conversation, stars int) (int, error) {
	if stars < 1 || stars > 5 {
		return 0, fmt.Errorf("learning: rating must be 1-5, got %d", stars)
	}
	if stars < l.cfg.SuccessThreshold {
		return 0, nil
	}

	mined := 0
	for i := 1; i < len(conv.Messages); i++ {
		msg := conv.Messages[i]
		prev := conv.Messages[i-1]
		if msg.Sender != "agent" || prev.Sender != "lead" {
			continue
		}
		trigger := truncateRunes(prev.Text, 200)
		response := truncateRunes(msg.Text, 500)
		if strings.TrimSpace(response) == "" {
			continue
		}
		stage := DetectStage(trigger)
		if err := l.merge(ctx, stage, trigger, response, stars); err != nil {
			return mined, err
		}
		mined++
	}

	log.Info().
		Str("conversation_id", conv.ID).
		Int("stars", stars).
		Int("patterns_mined", mined).
		Msg("conversation learned")

	return mined, nil
}

func (l *Learner) merge(ctx context.Context, stage funnel.Stage, trigger, response string, stars int) error {
	score := float64(stars) / 5

	l.mu.Lock()
	key := patternKey(stage, response)
	p, exists := l.byKey[key]
	if exists {
		p.Weight = l.cfg.Decay*p.Weight + (1-l.cfg.Decay)*score
		p.Samples++
		p.UpdatedAt = time.Now().UTC()
	} else {
		initial := 0.3 + 0.1*float64(stars)
		if initial > 0.9 {
			initial = 0.9
		}
		p = &Pattern{
			ID:        uuid.NewString(),
			Stage:     stage,
			Trigger:   trigger,
			Response:  response,
			Weight:    initial,
			Samples:   1,
			UpdatedAt: time.Now().UTC(),
		}
		l.byKey[key] = p
		l.byStage[stage] = append(l.byStage[stage], p)
	}
	evicted := l.evictLocked(stage)
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.UpsertPattern(ctx, toRecord(p)); err != nil {
			return fmt.Errorf("learning: persist pattern: %w", err)
		}
		if evicted != nil {
			if err := l.repo.DeletePattern(ctx, evicted.ID); err != nil {
				return fmt.Errorf("learning: delete evicted pattern: %w", err)
			}
		}
	}
	return nil
}

// evictLocked drops the lowest-weight pattern when a stage exceeds the cap.
// Must be called with l.mu held. Returns the evicted pattern, if any.
func (l *Learner) evictLocked(stage funnel.Stage) *Pattern {
	patterns := l.byStage[stage]
	if len(patterns) <= l.cfg.MaxPerStage {
		return nil
	}
	lowest := 0
	for i, p := range patterns {
		if p.Weight < patterns[lowest].Weight {
			lowest = i
		}
	}
	evicted := patterns[lowest]
	l.byStage[stage] = append(patterns[:lowest], patterns[lowest+1:]...)
	delete(l.byKey, patternKey(stage, evicted.Response))
	return evicted
}

// Suggest returns the highest-weight patterns for a stage, best first.
// They are hints to merge into the chat prompt, never a replacement for the
// provider call.
func (l *Learner) Suggest(stage funnel.Stage) []Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	patterns := l.byStage[stage]
	ranked := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		ranked = append(ranked, *p)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Weight > ranked[j].Weight })
	if len(ranked) > l.cfg.SuggestLimit {
		ranked = ranked[:l.cfg.SuggestLimit]
	}
	return ranked
}

// StageStats summarizes the learned corpus for one stage.
type StageStats struct {
	Patterns  int     `json:"patterns"`
	AvgWeight float64 `json:"avg_weight"`
}

// Stats returns per-stage pattern counts and average weights.
func (l *Learner) Stats() map[funnel.Stage]StageStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[funnel.Stage]StageStats, len(l.byStage))
	for stage, patterns := range l.byStage {
		if len(patterns) == 0 {
			continue
		}
		sum := 0.0
		for _, p := range patterns {
			sum += p.Weight
		}
		stats[stage] = StageStats{
			Patterns:  len(patterns),
			AvgWeight: sum / float64(len(patterns)),
		}
	}
	return stats
}

func toRecord(p *Pattern) store.PatternRecord {
	return store.PatternRecord{
		ID:        p.ID,
		Stage:     string(p.Stage),
		Trigger:   p.Trigger,
		Response:  p.Response,
		Weight:    p.Weight,
		Samples:   p.Samples,
		UpdatedAt: p.UpdatedAt,
	}
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
