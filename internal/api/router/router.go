package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/intake-agent/internal/advisory"
	"github.com/wolfman30/intake-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/intake-agent/internal/http/middleware"
	"github.com/wolfman30/intake-agent/internal/webchat"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebChatHandler      *webchat.Handler
	AdvisoryHandler     *advisory.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimiter         *httpmiddleware.RateLimiter

	// OperatorJWTSecret guards session snapshots when set.
	OperatorJWTSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	limited := httpmiddleware.RateLimit(cfg.RateLimiter)

	if cfg.ConversationHandler != nil || cfg.WebChatHandler != nil {
		r.Route("/api/appointments", func(appt chi.Router) {
			// Websocket upgrades hijack the connection; keep them outside the limiter.
			if cfg.WebChatHandler != nil {
				appt.Get("/ws", cfg.WebChatHandler.HandleWebSocket)
			}
			if cfg.ConversationHandler != nil {
				var guards []func(http.Handler) http.Handler
				if cfg.OperatorJWTSecret != "" {
					guards = append(guards, httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))
				}
				appt.Group(func(g chi.Router) {
					g.Use(limited)
					cfg.ConversationHandler.Routes(g, guards...)
				})
			}
		})
	}

	if cfg.AdvisoryHandler != nil {
		r.Group(func(g chi.Router) {
			g.Use(limited)
			cfg.AdvisoryHandler.Routes(g)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
