package serper

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

// Adapter queries the Serper Google-search API. Serper keys are quota
// limited, so this is the adapter the key rotator matters most for.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Serper adapter.
type Config struct {
	BaseURL string // optional, defaults to https://google.serper.dev
	HTTP    *http.Client
}

// New creates a Serper search adapter.
func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://google.serper.dev"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Adapter{baseURL: baseURL, httpClient: httpClient}
}

// Name returns the provider class used to select the key pool.
func (a *Adapter) Name() string { return "serper" }

// Attempt runs one search using the supplied key.
func (a *Adapter) Attempt(ctx context.Context, key string, p provider.Payload) (provider.Result, error) {
	if p.Query == "" {
		return provider.Result{}, errors.New("serper: empty query")
	}
	if key == "" {
		return provider.Result{}, errors.New("serper: api key required (401)")
	}

	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	geo := p.Geo
	if geo == "" {
		geo = "eg"
	}
	lang := p.Lang
	if lang == "" {
		lang = "ar"
	}

	body, err := json.Marshal(map[string]any{
		"q":   p.Query,
		"gl":  geo,
		"hl":  lang,
		"num": maxResults,
	})
	if err != nil {
		return provider.Result{}, fmt.Errorf("serper: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, fmt.Errorf("serper: create request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("serper: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("serper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.Result{}, fmt.Errorf("serper: http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("serper: unmarshal response: %w", err)
	}

	results := make([]provider.SearchResult, 0, len(parsed.Organic))
	for i, item := range parsed.Organic {
		if i >= maxResults {
			break
		}
		results = append(results, provider.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  "serper",
		})
	}
	return provider.Result{Results: results}, nil
}
