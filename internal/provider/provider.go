package provider

import (
	"context"
	"errors"
)

// Capability names a class of interchangeable providers.
type Capability string

const (
	CapabilityChat   Capability = "chat"
	CapabilitySearch Capability = "search"
)

// ErrAllProvidersFailed is returned by Chain.Attempt when every adapter in
// the chain failed or was skipped. It is caller-visible and retryable; the
// engine rolls the wallet back when it sees it.
var ErrAllProvidersFailed = errors.New("provider: all providers failed")

// Payload carries the request across all adapters of a capability. Chat
// adapters read Prompt/System/Patterns; search adapters read Query/Geo/Lang.
type Payload struct {
	// chat
	Prompt   string
	System   string
	Patterns []string // learned reply hints merged into the prompt

	// search
	Query      string
	Geo        string // country code for localized results, e.g. "eg"
	Lang       string
	MaxResults int
}

// SearchResult is a single hit from a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Result is the uniform success value of an attempt.
type Result struct {
	Text    string
	Results []SearchResult
	// Provider is the adapter that produced the result.
	Provider string
}

// Adapter is the uniform attempt contract: one call that produces a result
// or fails. Adapters hold no key material; the chain hands them the key the
// rotator selected for this attempt.
type Adapter interface {
	// Name is the provider class, used to select the key pool.
	Name() string
	Attempt(ctx context.Context, key string, p Payload) (Result, error)
}
