// Package httpserver decodes HTTP requests into engine calls. It holds no
// business logic; every rule lives behind the engine façade.
package httpserver

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/brilliox/hunterpro/internal/engine"
	"github.com/brilliox/hunterpro/internal/funnel"
	"github.com/brilliox/hunterpro/internal/provider"
	"github.com/brilliox/hunterpro/internal/store"
	"github.com/brilliox/hunterpro/internal/wallet"
)

// Server exposes the engine over REST.
type Server struct {
	engine *engine.Engine
	router chi.Router
}

// New builds the HTTP server around an engine.
func New(eng *engine.Engine) *Server {
	s := &Server{engine: eng}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/hunt", s.handleHunt)
		r.Get("/leads", s.handleListLeads)
		r.Post("/leads/{leadID}/stage", s.handleAdvanceStage)
		r.Post("/leads/{leadID}/suggest", s.handleSuggestReply)
		r.Post("/conversations/{conversationID}/rate", s.handleRate)
		r.Get("/wallet/{userID}", s.handleBalance)
		r.Get("/wallet/{userID}/history", s.handleHistory)
		r.Post("/wallet/{userID}/credit", s.handleCredit)
		r.Get("/learning/stats", s.handleLearningStats)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientKey identifies the rate-limit bucket: the user when known,
// otherwise the remote IP.
func clientKey(r *http.Request, userID string) string {
	if userID != "" {
		return userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type chatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}

	res, err := s.engine.DoChat(r.Context(), req.UserID, clientKey(r, req.UserID), req.Message, req.ConversationID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type huntRequest struct {
	UserID   string `json:"user_id"`
	Query    string `json:"query"`
	City     string `json:"city,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Country  string `json:"country,omitempty"`
}

func (s *Server) handleHunt(w http.ResponseWriter, r *http.Request) {
	var req huntRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "user_id and query are required")
		return
	}

	res, err := s.engine.DoHunt(r.Context(), req.UserID, clientKey(r, req.UserID), req.Query, req.City, req.Strategy, req.Country)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	leads, err := s.engine.Leads(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

type advanceRequest struct {
	Stage  string `json:"stage"`
	Rating int    `json:"rating,omitempty"`
}

func (s *Server) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stage, err := s.engine.AdvanceFunnel(r.Context(), leadID, funnel.Stage(req.Stage), req.Rating)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lead_id": leadID, "stage": string(stage)})
}

type suggestRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleSuggestReply(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := s.engine.SuggestReply(r.Context(), req.UserID, clientKey(r, req.UserID), leadID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rateRequest struct {
	Stars int `json:"stars"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Stars < 1 || req.Stars > 5 {
		writeError(w, http.StatusBadRequest, "stars must be 1-5")
		return
	}

	if err := s.engine.RateConversation(r.Context(), conversationID, req.Stars); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rated"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := s.engine.Balance(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.engine.History(r.Context(), userID, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type creditRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	balance, err := s.engine.Credit(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stages": s.engine.LearningStats()})
}

// writeEngineError maps domain errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var rateErr *engine.RateLimitedError
	var transErr *funnel.ErrInvalidTransition

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient token balance")
	case errors.Is(err, engine.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "rating must be 1-5")
	case errors.Is(err, provider.ErrAllProvidersFailed):
		writeError(w, http.StatusBadGateway, "all providers failed")
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, transErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyRated):
		writeError(w, http.StatusConflict, "conversation already rated")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
