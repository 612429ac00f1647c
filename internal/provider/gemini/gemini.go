package gemini

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

var _ provider.Adapter = (*Adapter)(nil)

// Adapter sends chat requests to the Google Gemini generateContent API.
// Gemini has no separate system role on this endpoint, so the system prompt
// is prepended to the user prompt.
type Adapter struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Config holds configuration for the Gemini adapter.
type Config struct {
	BaseURL   string // optional, defaults to https://generativelanguage.googleapis.com
	Model     string // optional, defaults to gemini-1.5-flash
	MaxTokens int
	HTTP      *http.Client
}

// New creates a Gemini chat adapter.
func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Adapter{baseURL: baseURL, model: model, maxTokens: maxTokens, httpClient: httpClient}
}

// Name returns the provider class used to select the key pool.
func (a *Adapter) Name() string { return "gemini" }

// Attempt sends one generateContent request using the supplied key.
func (a *Adapter) Attempt(ctx context.Context, key string, p provider.Payload) (provider.Result, error) {
	if p.Prompt == "" {
		return provider.Result{}, errors.New("gemini: empty prompt")
	}
	if key == "" {
		return provider.Result{}, errors.New("gemini: api key required (401)")
	}

	fullPrompt := p.Prompt
	if system := systemText(p); system != "" {
		fullPrompt = system + "\n\n" + p.Prompt
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": fullPrompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": a.maxTokens,
			"temperature":     0.7,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", a.baseURL, a.model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return provider.Result{}, fmt.Errorf("gemini: http %d: %s (status=%s)",
				resp.StatusCode, errResp.Error.Message, errResp.Error.Status)
		}
		return provider.Result{}, fmt.Errorf("gemini: http %d: %s", resp.StatusCode, string(respBody))
	}

	var generated struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &generated); err != nil {
		return provider.Result{}, fmt.Errorf("gemini: unmarshal response: %w", err)
	}
	if len(generated.Candidates) == 0 || len(generated.Candidates[0].Content.Parts) == 0 {
		return provider.Result{}, errors.New("gemini: empty candidates in response")
	}

	return provider.Result{Text: generated.Candidates[0].Content.Parts[0].Text}, nil
}

func systemText(p provider.Payload) string {
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
