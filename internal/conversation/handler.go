package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/intake-agent/internal/appointment"
	httpmiddleware "github.com/wolfman30/intake-agent/internal/http/middleware"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

const maxBodyBytes = 64 << 10

// TurnService is the part of Service the HTTP and websocket transports use.
type TurnService interface {
	HandleTurn(ctx context.Context, req TurnRequest) *TurnResult
	Reset(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) (*session.Session, error)
}

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service TurnService
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service TurnService, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the appointment endpoints under r. snapshotGuards wrap only
// the session snapshot route.
func (h *Handler) Routes(r chi.Router, snapshotGuards ...func(http.Handler) http.Handler) {
	r.Post("/chat", h.Chat)
	r.Post("/reset", h.Reset)
	r.With(snapshotGuards...).Get("/sessions/{id}", h.Session)
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Chat handles POST /api/appointments/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result := h.service.HandleTurn(r.Context(), req)
	h.writeJSON(w, turnStatusCode(result), result)
}

// Reset handles POST /api/appointments/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode reset request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.service.Reset(r.Context(), req.SessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrMissingSessionID):
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		case errors.Is(err, session.ErrBusy):
			h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("failed to reset session", "session_id", req.SessionID, "error", err)
			h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to reset session"})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "reset",
		"session_id": req.SessionID,
		"message":    "Session reset successfully",
	})
}

type sessionResponse struct {
	SessionID     string              `json:"session_id"`
	Phase         session.Phase       `json:"phase"`
	Turns         int                 `json:"turns"`
	CollectedInfo map[string]string   `json:"collected_info"`
	MissingFields []appointment.Field `json:"missing_fields"`
	ExtractedInfo appointment.Context `json:"extracted_info"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Session handles GET /api/appointments/sessions/{id}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		case errors.Is(err, session.ErrMissingSessionID):
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		case errors.Is(err, session.ErrBusy):
			h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("failed to load session", "session_id", id, "error", err)
			h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load session"})
		}
		return
	}
	if claims, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		h.logger.Info("session inspected", "session_id", sess.ID, "operator", claims.Subject)
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     sess.ID,
		Phase:         sess.Phase,
		Turns:         sess.Turns,
		CollectedInfo: sess.Context.CollectedMap(),
		MissingFields: nonNil(appointment.MissingRequired(sess.Context)),
		ExtractedInfo: sess.Context,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	})
}

// turnStatusCode maps caller errors to 4xx. Other failed turns still answer
// 200 with status "error" in the body.
func turnStatusCode(result *TurnResult) int {
	err := result.Err()
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
