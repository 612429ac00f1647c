package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon's environment-level configuration. Business rules
// (token costs, rate limits, provider order) live in the YAML rules file so
// they can change without a rebuild; the environment carries wiring and
// secrets only.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// StoreBackend selects the persistence layer: "sqlite" or "postgres".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"./data/hunterpro.db"`
	PostgresDSN  string `env:"POSTGRES_DSN"`

	// RedisURL enables the distributed rate-limit store when set; the
	// limiter falls back to the in-memory store otherwise.
	RedisURL string `env:"REDIS_URL"`

	RulesFile string `env:"RULES_FILE" envDefault:"./rules.yaml"`

	// Comma-separated key pools per provider class. Keys rotate through
	// the keyring; a class with no keys is skipped unless the adapter is
	// keyless (duckduckgo).
	OpenAIKeys []string `env:"OPENAI_API_KEYS" envSeparator:","`
	GeminiKeys []string `env:"GEMINI_API_KEYS" envSeparator:","`
	GroqKeys   []string `env:"GROQ_API_KEYS" envSeparator:","`
	SerperKeys []string `env:"SERPER_KEYS" envSeparator:","`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	GroqBaseURL   string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GroqModel     string `env:"GROQ_MODEL" envDefault:"llama-3.1-70b-versatile"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate checks combinations env.Parse cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH required when STORE_BACKEND=sqlite")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want sqlite or postgres)", c.StoreBackend)
	}
	return nil
}

// Keys returns the trimmed, non-empty key pool for a provider class.
func (c *Config) Keys(class string) []string {
	var raw []string
	switch class {
	case "openai":
		raw = c.OpenAIKeys
	case "gemini":
		raw = c.GeminiKeys
	case "groq":
		raw = c.GroqKeys
	case "serper":
		raw = c.SerperKeys
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
