package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/yourusername/wrenchgate/breaker"
	"github.com/yourusername/wrenchgate/clock"
	"github.com/yourusername/wrenchgate/gate"
	"github.com/yourusername/wrenchgate/llm"
	"github.com/yourusername/wrenchgate/metrics"
	"github.com/yourusername/wrenchgate/ratelimit"
	"github.com/yourusername/wrenchgate/validator"
)

// providerFunc adapts a function to llm.Provider.
type providerFunc func(ctx context.Context, messages []llm.Message) (string, error)

func (f providerFunc) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return f(ctx, messages)
}

var okProvider = providerFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
	return "Check your chain slack and lube it every 500 miles.", nil
})

var failingProvider = providerFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
	return "", llm.ErrRequestFailed
})

type testServer struct {
	handler *Handler
	router  http.Handler
	breaker *breaker.CircuitBreaker
	metrics *metrics.Metrics
	clk     *clock.VirtualClock
}

func newTestServer(t *testing.T, provider llm.Provider, rlCfg ratelimit.Config, threshold uint32, timeout time.Duration) *testServer {
	t.Helper()

	clk := clock.NewVirtualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := ratelimit.NewMemoryLimiter(rlCfg, clk)
	if err != nil {
		t.Fatalf("NewMemoryLimiter() error = %v", err)
	}
	cb := breaker.New(threshold, timeout, clk)
	g, err := gate.New(limiter, validator.New(validator.Config{}), cb)
	if err != nil {
		t.Fatalf("gate.New() error = %v", err)
	}

	m := metrics.New()
	h := NewHandler(g, provider, cb, m)
	return &testServer{
		handler: h,
		router:  NewRouter(h, NewMetricsHandler(m), nil),
		breaker: cb,
		metrics: m,
		clk:     clk,
	}
}

func (ts *testServer) chat(t *testing.T, query string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(ChatRequest{Query: query})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error response: %v (body: %s)", err, rec.Body.String())
	}
	return e
}

func TestHandleChat_Success(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	rec := ts.chat(t, "How do I change my motorcycle oil?")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response == "" {
		t.Error("Response is empty")
	}
	if resp.SessionID == "" {
		t.Error("SessionID not generated")
	}
	if resp.RateLimit.RemainingMinute != 4 {
		t.Errorf("RemainingMinute = %d, want 4", resp.RateLimit.RemainingMinute)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleChat_KeepsClientSessionID(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	body, _ := json.Marshal(ChatRequest{Query: "brake pad wear limit?", SessionID: "session-42"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "session-42" {
		t.Errorf("SessionID = %q, want session-42", resp.SessionID)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %q, want INVALID_REQUEST", e.Code)
	}
}

func TestHandleChat_RejectedQuery(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	rec := ts.chat(t, "What's the weather today?")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != "INVALID_QUERY" {
		t.Errorf("Code = %q, want INVALID_QUERY", e.Code)
	}
	if e.Details != string(validator.ReasonOffTopic) {
		t.Errorf("Details = %q, want %q", e.Details, validator.ReasonOffTopic)
	}
}

func TestHandleChat_RateLimited(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 2, MaxPerHour: 100}, 3, time.Minute)

	ts.chat(t, "How do I change my motorcycle oil?")
	ts.chat(t, "How do I change my motorcycle oil?")
	rec := ts.chat(t, "How do I change my motorcycle oil?")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("Code = %q, want RATE_LIMIT_EXCEEDED", e.Code)
	}
}

func TestHandleChat_CircuitOpen(t *testing.T) {
	ts := newTestServer(t, failingProvider, ratelimit.Config{MaxPerMinute: 10, MaxPerHour: 100}, 2, 30*time.Second)

	// Each failing upstream call returns 500 and feeds the breaker.
	for i := 0; i < 2; i++ {
		rec := ts.chat(t, "How do I change my motorcycle oil?")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("request #%d status = %d, want 500", i+1, rec.Code)
		}
		if e := decodeError(t, rec); e.Code != "AI_ERROR" {
			t.Fatalf("request #%d Code = %q, want AI_ERROR", i+1, e.Code)
		}
	}

	rec := ts.chat(t, "How do I change my motorcycle oil?")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "SERVICE_UNAVAILABLE" {
		t.Errorf("Code = %q, want SERVICE_UNAVAILABLE", e.Code)
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After = %q, want whole seconds", rec.Header().Get("Retry-After"))
	}
	if retryAfter < 1 || retryAfter > 30 {
		t.Errorf("Retry-After = %d, want in [1, 30]", retryAfter)
	}
}

func TestHandleChat_RecoveryAfterTimeout(t *testing.T) {
	calls := 0
	provider := providerFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("upstream down")
		}
		return "All good now.", nil
	})

	ts := newTestServer(t, provider, ratelimit.Config{MaxPerMinute: 10, MaxPerHour: 100}, 2, 30*time.Second)

	ts.chat(t, "motorcycle oil?")
	ts.chat(t, "motorcycle oil?")
	if got := ts.breaker.State(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	ts.clk.Advance(30 * time.Second)
	rec := ts.chat(t, "motorcycle oil?")
	if rec.Code != http.StatusOK {
		t.Fatalf("probe status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if got := ts.breaker.State(); got != breaker.StateClosed {
		t.Errorf("breaker state after probe = %v, want closed", got)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	ts.chat(t, "How do I change my motorcycle oil?")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		RateLimit      ratelimit.Info `json:"rate_limit"`
		CircuitBreaker struct {
			State string `json:"state"`
		} `json:"circuit_breaker"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RateLimit.RemainingMinute != 4 {
		t.Errorf("RemainingMinute = %d, want 4", resp.RateLimit.RemainingMinute)
	}
	if resp.CircuitBreaker.State != "closed" {
		t.Errorf("breaker state = %q, want closed", resp.CircuitBreaker.State)
	}

	// Status polling never consumes quota.
	for i := 0; i < 10; i++ {
		ts.router.ServeHTTP(httptest.NewRecorder(), req)
	}
	rec2 := httptest.NewRecorder()
	ts.router.ServeHTTP(rec2, req)
	json.Unmarshal(rec2.Body.Bytes(), &resp)
	if resp.RateLimit.RemainingMinute != 4 {
		t.Errorf("RemainingMinute after polling = %d, want 4", resp.RateLimit.RemainingMinute)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func TestHandleCircuitReset(t *testing.T) {
	ts := newTestServer(t, failingProvider, ratelimit.Config{MaxPerMinute: 10, MaxPerHour: 100}, 1, time.Hour)

	ts.chat(t, "motorcycle oil?")
	if got := ts.breaker.State(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/circuit/reset", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := ts.breaker.State(); got != breaker.StateClosed {
		t.Errorf("breaker state after reset = %v, want closed", got)
	}
	if got := ts.breaker.Stats().TotalRequests; got != 0 {
		t.Errorf("TotalRequests after reset = %d, want 0", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, okProvider, ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 100}, 3, time.Minute)

	ts.chat(t, "How do I change my motorcycle oil?")
	ts.chat(t, "tell me a joke") // rejected

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", snap.TotalRequests)
	}
	if snap.Allowed != 1 {
		t.Errorf("Allowed = %d, want 1", snap.Allowed)
	}
	if snap.RejectedQuery != 1 {
		t.Errorf("RejectedQuery = %d, want 1", snap.RejectedQuery)
	}
	if snap.UniqueClients != 1 {
		t.Errorf("UniqueClients = %d, want 1", snap.UniqueClients)
	}
}
