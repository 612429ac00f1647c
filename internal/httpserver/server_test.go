package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliox/hunterpro/internal/engine"
	"github.com/brilliox/hunterpro/internal/funnel"
	"github.com/brilliox/hunterpro/internal/learning"
	"github.com/brilliox/hunterpro/internal/provider"
	"github.com/brilliox/hunterpro/internal/ratelimit"
	"github.com/brilliox/hunterpro/internal/store"
	storesqlite "github.com/brilliox/hunterpro/internal/store/sqlite"
	"github.com/brilliox/hunterpro/internal/wallet"
	walletsqlite "github.com/brilliox/hunterpro/internal/wallet/sqlite"
)

type stubAdapter struct {
	name string
	fn   func(p provider.Payload) (provider.Result, error)
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Attempt(_ context.Context, _ string, p provider.Payload) (provider.Result, error) {
	if a.fn != nil {
		return a.fn(p)
	}
	return provider.Result{Text: "أهلاً بيك"}, nil
}

type serverEnv struct {
	ts   *httptest.Server
	repo store.Repository
	chat *stubAdapter
}

func newServerEnv(t *testing.T, defaultBalance int64, rateLimit int) *serverEnv {
	t.Helper()
	dir := t.TempDir()

	repo, err := storesqlite.New(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ws, err := walletsqlite.New(filepath.Join(dir, "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	chat := &stubAdapter{name: "chat"}
	search := &stubAdapter{name: "search", fn: func(provider.Payload) (provider.Result, error) {
		return provider.Result{Results: []provider.SearchResult{
			{Title: "محتاج مصور", Link: "https://a/1", Snippet: "كلموني 01012345678"},
		}}, nil
	}}
	keyring := provider.NewKeyring()

	chatChain, err := provider.NewChain(provider.ChainConfig{
		Capability: provider.CapabilityChat,
		Adapters:   []provider.Adapter{chat},
		Keyring:    keyring,
		Timeout:    time.Second,
	})
	require.NoError(t, err)
	searchChain, err := provider.NewChain(provider.ChainConfig{
		Capability: provider.CapabilitySearch,
		Adapters:   []provider.Adapter{search},
		Keyring:    keyring,
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	limiterStore := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = limiterStore.Close() })

	learner, err := learning.NewLearner(context.Background(), learning.Config{}, repo)
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			Store:  limiterStore,
			Limit:  rateLimit,
			Window: time.Minute,
			Block:  5 * time.Minute,
		}),
		Wallet:      wallet.NewManager(ws, defaultBalance),
		ChatChain:   chatChain,
		SearchChain: searchChain,
		Tracker:     funnel.NewTracker(repo),
		Learner:     learner,
		Repo:        repo,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(New(eng).Handler())
	t.Cleanup(ts.Close)

	return &serverEnv{ts: ts, repo: repo, chat: chat}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatEndpoint(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	resp, body := postJSON(t, env.ts.URL+"/api/chat", map[string]string{
		"user_id": "u1",
		"message": "مرحبا",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "أهلاً بيك", body["reply"])
	assert.Equal(t, float64(98), body["balance"])
	assert.NotEmpty(t, body["conversation_id"])
}

func TestChatValidation(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	resp, _ := postJSON(t, env.ts.URL+"/api/chat", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatInsufficientFunds(t *testing.T) {
	env := newServerEnv(t, 1, 100)

	resp, body := postJSON(t, env.ts.URL+"/api/chat", map[string]string{
		"user_id": "u1",
		"message": "مرحبا",
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Contains(t, body["error"], "insufficient")
}

func TestChatRateLimited(t *testing.T) {
	env := newServerEnv(t, 100, 1)

	resp, _ := postJSON(t, env.ts.URL+"/api/chat", map[string]string{"user_id": "u1", "message": "أ"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, env.ts.URL+"/api/chat", map[string]string{"user_id": "u1", "message": "ب"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestChatProviderFailure(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	env.chat.fn = func(provider.Payload) (provider.Result, error) {
		return provider.Result{}, errors.New("timeout")
	}

	resp, _ := postJSON(t, env.ts.URL+"/api/chat", map[string]string{"user_id": "u1", "message": "مرحبا"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHuntEndpoint(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	resp, body := postJSON(t, env.ts.URL+"/api/hunt", map[string]string{
		"user_id": "u1",
		"query":   "أنا مصور أفراح",
		"city":    "القاهرة",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(80), body["balance"])
	assert.Len(t, body["lead_ids"], 1)
}

func TestStageEndpointInvalidTransition(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	lead := store.Lead{
		ID: "l1", UserID: "u1",
		Stages: []store.StageRecord{{Stage: string(funnel.StageBaitSent), At: time.Now().UTC()}},
	}
	require.NoError(t, env.repo.SaveLead(context.Background(), lead))

	resp, _ := postJSON(t, env.ts.URL+"/api/leads/l1/stage", map[string]any{"stage": "hot"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := postJSON(t, env.ts.URL+"/api/leads/l1/stage", map[string]any{"stage": "replied"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "replied", body["stage"])
}

func TestStageEndpointRejectsOutOfRangeRating(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	ctx := context.Background()

	require.NoError(t, env.repo.SaveLead(ctx, store.Lead{
		ID: "l1", UserID: "u1",
		Stages: []store.StageRecord{{Stage: string(funnel.StageHot), At: time.Now().UTC()}},
	}))
	require.NoError(t, env.repo.SaveConversation(ctx, store.Conversation{
		ID: "c1", LeadID: "l1", UserID: "u1",
		Messages: []store.Message{
			{Sender: "lead", Text: "السعر كام؟", At: time.Now().UTC()},
			{Sender: "agent", Text: "السعر 500", At: time.Now().UTC()},
		},
	}))

	resp, _ := postJSON(t, env.ts.URL+"/api/leads/l1/stage", map[string]any{"stage": "closed", "rating": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// the rejected call left no trace: the advance and a valid rating still work
	conv, err := env.repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Rating)

	resp, body := postJSON(t, env.ts.URL+"/api/leads/l1/stage", map[string]any{"stage": "closed", "rating": 5})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "closed", body["stage"])

	conv, err = env.repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, conv.Rating)
}

func TestRateEndpointConflictOnSecondRating(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	require.NoError(t, env.repo.SaveConversation(context.Background(), store.Conversation{
		ID: "c1", LeadID: "l1",
		Messages: []store.Message{
			{Sender: "lead", Text: "السعر كام؟", At: time.Now().UTC()},
			{Sender: "agent", Text: "السعر 500", At: time.Now().UTC()},
		},
	}))

	resp, _ := postJSON(t, env.ts.URL+"/api/conversations/c1/rate", map[string]int{"stars": 5})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, env.ts.URL+"/api/conversations/c1/rate", map[string]int{"stars": 4})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = postJSON(t, env.ts.URL+"/api/conversations/c1/rate", map[string]int{"stars": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWalletEndpoints(t *testing.T) {
	env := newServerEnv(t, 100, 100)

	resp, body := postJSON(t, env.ts.URL+"/api/wallet/u1/credit", map[string]int{"amount": 50})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(150), body["balance"])

	getResp, err := http.Get(env.ts.URL + "/api/wallet/u1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var balanceBody map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&balanceBody))
	assert.Equal(t, float64(150), balanceBody["balance"])

	histResp, err := http.Get(env.ts.URL + "/api/wallet/u1/history")
	require.NoError(t, err)
	defer histResp.Body.Close()
	assert.Equal(t, http.StatusOK, histResp.StatusCode)
}

func TestLeadNotFound(t *testing.T) {
	env := newServerEnv(t, 100, 100)
	resp, _ := postJSON(t, env.ts.URL+"/api/leads/nope/suggest", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
