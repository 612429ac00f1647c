package duckduckgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brilliox/hunterpro/internal/provider"
)

var _ provider.Adapter = (*Adapter)(nil)

// Adapter queries the keyless DuckDuckGo instant-answer API. It sits last
// in the search chain: results are thinner than Serper's but it costs no
// quota, so the chain always has somewhere to land.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the DuckDuckGo adapter.
type Config struct {
	BaseURL string // optional, defaults to https://api.duckduckgo.com
	HTTP    *http.Client
}

// New creates a DuckDuckGo search adapter.
func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Adapter{baseURL: baseURL, httpClient: httpClient}
}

// Name returns the provider class. No key pool is registered for it.
func (a *Adapter) Name() string { return "duckduckgo" }

// Attempt runs one search. The key is ignored; the API is keyless.
func (a *Adapter) Attempt(ctx context.Context, _ string, p provider.Payload) (provider.Result, error) {
	if p.Query == "" {
		return provider.Result{}, errors.New("duckduckgo: empty query")
	}

	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	params := url.Values{}
	params.Set("q", p.Query)
	params.Set("format", "json")
	params.Set("no_redirect", "1")
	params.Set("no_html", "1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return provider.Result{}, fmt.Errorf("duckduckgo: create request: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("duckduckgo: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("duckduckgo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.Result{}, fmt.Errorf("duckduckgo: http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("duckduckgo: unmarshal response: %w", err)
	}

	var results []provider.SearchResult
	for _, item := range parsed.RelatedTopics {
		if item.Text == "" {
			continue
		}
		title := item.Text
		if r := []rune(title); len(r) > 100 {
			title = string(r[:100])
		}
		results = append(results, provider.SearchResult{
			Title:   title,
			Link:    item.FirstURL,
			Snippet: item.Text,
			Source:  "duckduckgo",
		})
		if len(results) >= maxResults {
			break
		}
	}
	return provider.Result{Results: results}, nil
}
