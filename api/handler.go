// Package api exposes the chat service over HTTP: the gated chat endpoint,
// per-client status, health, metrics, and the operator circuit reset.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/wrenchgate/breaker"
	"github.com/yourusername/wrenchgate/gate"
	"github.com/yourusername/wrenchgate/llm"
	"github.com/yourusername/wrenchgate/ratelimit"
)

// DecisionRecorder receives gate decisions and upstream failures for metrics.
type DecisionRecorder interface {
	RecordDecision(clientKey string, outcome gate.Outcome)
	RecordUpstreamError()
}

// Handler serves the chat API. The gate, provider, and breaker are injected
// so tests can swap any of them out.
type Handler struct {
	gate     *gate.Gate
	provider llm.Provider
	breaker  *breaker.CircuitBreaker
	metrics  DecisionRecorder
}

// NewHandler creates an API handler. metrics may be nil.
func NewHandler(g *gate.Gate, provider llm.Provider, cb *breaker.CircuitBreaker, metrics DecisionRecorder) *Handler {
	return &Handler{
		gate:     g,
		provider: provider,
		breaker:  cb,
		metrics:  metrics,
	}
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	// Query is the user's question.
	Query string `json:"query"`

	// SessionID ties turns of one conversation together; generated when absent.
	SessionID string `json:"session_id,omitempty"`

	// BikeModel optionally scopes manual retrieval once that exists.
	BikeModel string `json:"bike_model,omitempty"`
}

// ChatResponse is the successful chat payload.
type ChatResponse struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	Sources   []Source       `json:"sources"`
	RateLimit ratelimit.Info `json:"rate_limit_info"`
}

// Source is a manual citation. Populated once retrieval is wired in.
type Source struct {
	BikeModel      string  `json:"bike_model"`
	PageNumber     *int    `json:"page_number,omitempty"`
	Section        string  `json:"section,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ErrorResponse is the structured error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// HandleChat runs POST /api/chat: gate, then provider, then exactly one
// outcome report back to the breaker.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", "")
		return
	}

	key := ClientKey(r)
	log.Printf("api: chat request from %s", key)

	decision, err := h.gate.Process(r.Context(), key, req.Query)
	if err != nil {
		log.Printf("api: gate error for %s: %v", key, err)
		h.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to evaluate request", "")
		return
	}

	h.recordDecision(key, decision.Outcome)

	switch decision.Outcome {
	case gate.OutcomeRateLimited:
		log.Printf("api: rate limit exceeded for %s", key)
		h.sendError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", decision.Err.Error(), "")
		return
	case gate.OutcomeRejectedQuery:
		log.Printf("api: invalid query from %s: %v", key, decision.Err)
		h.sendError(w, http.StatusBadRequest, "INVALID_QUERY", decision.Err.Error(), string(decision.Reason))
		return
	case gate.OutcomeCircuitOpen:
		log.Printf("api: circuit open, rejecting %s", key)
		w.Header().Set("Retry-After", formatSeconds(decision.RetryAfter))
		h.sendError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", decision.Err.Error(), "")
		return
	}

	messages := llm.BuildChatPrompt(req.Query, "", nil)

	text, err := h.provider.Complete(r.Context(), messages)
	if err != nil {
		h.gate.ReportFailure()
		if h.metrics != nil {
			h.metrics.RecordUpstreamError()
		}
		log.Printf("api: provider error for %s: %v", key, err)
		h.sendError(w, http.StatusInternalServerError, "AI_ERROR", "failed to generate response, please try again", "")
		return
	}
	h.gate.ReportSuccess()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	h.sendJSON(w, http.StatusOK, ChatResponse{
		Response:  text,
		SessionID: sessionID,
		Sources:   []Source{},
		RateLimit: decision.RateLimit,
	})
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	RateLimit      ratelimit.Info `json:"rate_limit"`
	CircuitBreaker breaker.Stats  `json:"circuit_breaker"`
}

// HandleStatus reports the caller's quota and the breaker state without
// recording a request.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	key := ClientKey(r)

	info, err := h.gate.Status(r.Context(), key)
	if err != nil {
		log.Printf("api: status error for %s: %v", key, err)
		h.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read status", "")
		return
	}

	h.sendJSON(w, http.StatusOK, StatusResponse{
		RateLimit:      info,
		CircuitBreaker: h.breaker.Stats(),
	})
}

// HandleHealth is the liveness endpoint.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wrenchgate",
	})
}

// HandleCircuitReset forces the breaker closed and clears its counters.
// Operator action; erases breaker history.
func (h *Handler) HandleCircuitReset(w http.ResponseWriter, r *http.Request) {
	h.breaker.Reset()
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "reset",
		"circuit_breaker": h.breaker.Stats(),
	})
}

func (h *Handler) recordDecision(key string, outcome gate.Outcome) {
	if h.metrics != nil {
		h.metrics.RecordDecision(key, outcome)
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message, details string) {
	h.sendJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// formatSeconds renders a Retry-After value in whole seconds, at least 1.
func formatSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
