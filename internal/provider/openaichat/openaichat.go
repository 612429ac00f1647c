package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brilliox/hunterpro/internal/provider"
)

// Ensure Adapter implements the attempt contract.
var _ provider.Adapter = (*Adapter)(nil)

// Adapter sends chat requests to any OpenAI-compatible completions API
// (OpenAI itself, Groq, and other drop-in providers).
type Adapter struct {
	name       string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Config holds configuration for an OpenAI-compatible chat adapter.
type Config struct {
	Name      string // provider class, e.g. "openai" or "groq"
	BaseURL   string // optional, defaults to https://api.openai.com/v1
	Model     string
	MaxTokens int // optional, defaults to 1000
	HTTP      *http.Client
}

// New creates an OpenAI-compatible chat adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, errors.New("openaichat: adapter name required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openaichat: model required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Adapter{
		name:       cfg.Name,
		baseURL:    baseURL,
		model:      cfg.Model,
		maxTokens:  maxTokens,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider class used to select the key pool.
func (a *Adapter) Name() string { return a.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attempt sends one chat completion request using the supplied key.
func (a *Adapter) Attempt(ctx context.Context, key string, p provider.Payload) (provider.Result, error) {
	if p.Prompt == "" {
		return provider.Result{}, errors.New("openaichat: empty prompt")
	}
	if key == "" {
		return provider.Result{}, errors.New("openaichat: api key required (401)")
	}

	messages := []message{}
	if system := buildSystem(p); system != "" {
		messages = append(messages, message{Role: "system", Content: system})
	}
	messages = append(messages, message{Role: "user", Content: p.Prompt})

	payload := map[string]any{
		"model":       a.model,
		"messages":    messages,
		"max_tokens":  a.maxTokens,
		"temperature": 0.7,
		"stream":      false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaichat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaichat: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaichat: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaichat: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return provider.Result{}, fmt.Errorf("openaichat: http %d: %s (type=%s, code=%s)",
				resp.StatusCode, errResp.Error.Message, errResp.Error.Type, errResp.Error.Code)
		}
		return provider.Result{}, fmt.Errorf("openaichat: http %d: %s", resp.StatusCode, string(respBody))
	}

	var completion struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return provider.Result{}, fmt.Errorf("openaichat: unmarshal response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return provider.Result{}, errors.New("openaichat: empty choices in response")
	}

	return provider.Result{Text: completion.Choices[0].Message.Content}, nil
}

// buildSystem merges learned reply patterns into the system prompt so the
// model is asked to incorporate them without bypassing the provider call.
func buildSystem(p provider.Payload) string {
	if len(p.Patterns) == 0 {
		return p.System
	}
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteString("\n\nReplies like these worked well in similar conversations; reuse their tone and structure where it fits:\n")
	for _, pattern := range p.Patterns {
		b.WriteString("- ")
		b.WriteString(pattern)
		b.WriteString("\n")
	}
	return b.String()
}
