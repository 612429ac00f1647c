package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules are the tunable business parameters. They ship with working
// defaults so the daemon runs without a rules file; an operator overrides
// individual values in YAML.
type Rules struct {
	DefaultBalance int64            `yaml:"default_balance"`
	Costs          map[string]int64 `yaml:"costs"`

	RateLimit struct {
		Limit         int `yaml:"limit"`
		WindowSeconds int `yaml:"window_seconds"`
		BlockSeconds  int `yaml:"block_seconds"`
	} `yaml:"rate_limit"`

	Provider struct {
		ChatOrder            []string `yaml:"chat_order"`
		SearchOrder          []string `yaml:"search_order"`
		TimeoutSeconds       int      `yaml:"timeout_seconds"`
		SearchTimeoutSeconds int      `yaml:"search_timeout_seconds"`
	} `yaml:"provider"`

	Learner struct {
		SuccessThreshold int     `yaml:"success_threshold"`
		Decay            float64 `yaml:"decay"`
		MaxPerStage      int     `yaml:"max_per_stage"`
		SuggestLimit     int     `yaml:"suggest_limit"`
	} `yaml:"learner"`

	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"cache"`
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	var r Rules
	r.DefaultBalance = 100
	r.Costs = map[string]int64{
		"chat":       2,
		"hunt":       20,
		"campaign":   50,
		"ad_create":  15,
		"ad_analyze": 10,
		"optimize":   25,
	}
	r.RateLimit.Limit = 60
	r.RateLimit.WindowSeconds = 60
	r.RateLimit.BlockSeconds = 300
	r.Provider.ChatOrder = []string{"openai", "gemini", "groq"}
	r.Provider.SearchOrder = []string{"serper", "duckduckgo"}
	r.Provider.TimeoutSeconds = 30
	r.Provider.SearchTimeoutSeconds = 10
	r.Learner.SuccessThreshold = 4
	r.Learner.Decay = 0.85
	r.Learner.MaxPerStage = 50
	r.Learner.SuggestLimit = 3
	r.Cache.TTLSeconds = 3600
	r.Cache.MaxEntries = 100
	return r
}

// LoadRules reads the YAML rules file, layered over the defaults. A missing
// file is not an error; the defaults apply as-is.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}
	return rules, nil
}

func (r Rules) RateWindow() time.Duration {
	return time.Duration(r.RateLimit.WindowSeconds) * time.Second
}

func (r Rules) RateBlock() time.Duration {
	return time.Duration(r.RateLimit.BlockSeconds) * time.Second
}

func (r Rules) ProviderTimeout() time.Duration {
	return time.Duration(r.Provider.TimeoutSeconds) * time.Second
}

func (r Rules) SearchTimeout() time.Duration {
	return time.Duration(r.Provider.SearchTimeoutSeconds) * time.Second
}

func (r Rules) CacheTTL() time.Duration {
	return time.Duration(r.Cache.TTLSeconds) * time.Second
}

// Cost returns the token cost for an operation, falling back to the chat
// cost for unknown names.
func (r Rules) Cost(op string) int64 {
	if c, ok := r.Costs[op]; ok {
		return c
	}
	return r.Costs["chat"]
}
