package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/intake-agent/internal/advisory"
	"github.com/wolfman30/intake-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/intake-agent/internal/http/middleware"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/internal/webchat"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

type fakeTurns struct{}

func (fakeTurns) HandleTurn(_ context.Context, req conversation.TurnRequest) *conversation.TurnResult {
	return &conversation.TurnResult{
		Status:    conversation.StatusCollectingInfo,
		SessionID: req.SessionID,
		Message:   "What is your name?",
	}
}

func (fakeTurns) Reset(context.Context, string) error { return nil }

func (fakeTurns) Snapshot(_ context.Context, id string) (*session.Session, error) {
	return session.New(id, time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)), nil
}

type fakeSearch struct{}

func (fakeSearch) Search(context.Context, string, int) ([]advisory.Result, error) {
	return []advisory.Result{{Title: "Legal aid cell", Link: "https://example.org", Snippet: "Free help"}}, nil
}

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	metrics.NewIntakeMetrics(reg)

	cfg := &Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(fakeTurns{}, logger),
		WebChatHandler:      webchat.NewHandler(fakeTurns{}, []string{"*"}, logger),
		AdvisoryHandler:     advisory.NewHandler(fakeSearch{}, nil, 5, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  []string{"https://app.example"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "intake_sessions_active") {
		t.Fatalf("expected intake collectors to be exported, got %s", rr.Body.String())
	}
}

func TestRouterChatEndpoint(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodPost, "/api/appointments/chat", `{"message":"hi","session_id":"s1"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var result conversation.TurnResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.SessionID != "s1" || result.Status != conversation.StatusCollectingInfo {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestRouterSnapshotOpenWithoutSecret(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodGet, "/api/appointments/sessions/s1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterSnapshotRequiresOperatorToken(t *testing.T) {
	const secret = "operator-secret"
	h := newTestRouter(t, func(c *Config) { c.OperatorJWTSecret = secret })

	if rr := serve(h, http.MethodGet, "/api/appointments/sessions/s1", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "front-desk",
		Audience:  jwt.ClaimStrings{httpmiddleware.OperatorAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rr := serve(h, http.MethodGet, "/api/appointments/sessions/s1", "", map[string]string{"Authorization": "Bearer " + token})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with operator token, got %d", rr.Code)
	}

	if rr := serve(h, http.MethodPost, "/api/appointments/chat", `{"message":"hi"}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("chat must stay public, got %d", rr.Code)
	}
}

func TestRouterAdvisoryEndpoints(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodPost, "/find-lawyers", `{"issue":"tenancy dispute","location":"Kochi"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected one result, got %d", body.Count)
	}
}

func TestRouterRateLimitsAPIButNotHealth(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Close()
	h := newTestRouter(t, func(c *Config) { c.RateLimiter = limiter })

	if rr := serve(h, http.MethodPost, "/api/appointments/chat", `{"message":"hi"}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/api/appointments/chat", `{"message":"hi"}`, nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("health must not be limited, got %d", rr.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodOptions, "/api/appointments/chat", "", map[string]string{
		"Origin":                        "https://app.example",
		"Access-Control-Request-Method": "POST",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRouterWebSocketRouteRequiresUpgrade(t *testing.T) {
	rr := serve(newTestRouter(t, nil), http.MethodGet, "/api/appointments/ws", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for plain GET, got %d", rr.Code)
	}
}
