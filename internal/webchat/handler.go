package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/intake-agent/internal/conversation"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

const maxFrameBytes = 64 << 10

// Frame types.
const (
	TypeMessage = "message"
	TypeReset   = "reset"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeSession = "session"
	TypeTyping  = "typing"
	TypeTurn    = "turn"
	TypeError   = "error"
)

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string                   `json:"type"`
	SessionID string                   `json:"session_id,omitempty"`
	Result    *conversation.TurnResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Handler runs appointment conversations over WebSocket. Each connection is
// bound to one session; frames are handled in order, one turn at a time.
type Handler struct {
	service  conversation.TurnService
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]string
}

// NewHandler creates a web chat handler. allowedOrigins containing "*" (or
// empty) accepts any origin.
func NewHandler(service conversation.TurnService, allowedOrigins []string, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: conversation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		conns: make(map[*websocket.Conn]string),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.TrimRight(origin, "/")]
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and serves GET /api/appointments/ws.
// The optional ?session= query parameter resumes an existing session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("webchat: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	h.track(conn, sessionID)
	defer h.untrack(conn)

	if err := conn.WriteJSON(OutboundMessage{Type: TypeSession, SessionID: sessionID}); err != nil {
		return
	}
	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("webchat: read failed", "session_id", sessionID, "error", err)
			} else {
				h.logger.Debug("webchat: connection closed", "session_id", sessionID)
			}
			return
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			sessionID = msg.SessionID
			h.track(conn, sessionID)
		}
		if err := h.handleFrame(r.Context(), sessionID, msg, conn.WriteJSON); err != nil {
			h.logger.Debug("webchat: write failed", "session_id", sessionID, "error", err)
			return
		}
	}
}

// handleFrame answers msg through send. For a message frame, typing is sent
// before the turn runs so the widget can show progress during oracle calls.
func (h *Handler) handleFrame(ctx context.Context, sessionID string, msg InboundMessage, send func(any) error) error {
	switch msg.Type {
	case TypePing:
		return send(OutboundMessage{Type: TypePong})
	case TypeMessage:
		if strings.TrimSpace(msg.Text) == "" {
			return send(OutboundMessage{Type: TypeError, SessionID: sessionID, Error: conversation.ErrEmptyMessage.Error()})
		}
		if err := send(OutboundMessage{Type: TypeTyping, SessionID: sessionID}); err != nil {
			return err
		}
		result := h.service.HandleTurn(ctx, conversation.TurnRequest{SessionID: sessionID, Message: msg.Text})
		return send(OutboundMessage{Type: TypeTurn, SessionID: result.SessionID, Result: result})
	case TypeReset:
		if err := h.service.Reset(ctx, sessionID); err != nil {
			if !errors.Is(err, session.ErrMissingSessionID) {
				h.logger.Error("webchat: reset failed", "session_id", sessionID, "error", err)
			}
			return send(OutboundMessage{Type: TypeError, SessionID: sessionID, Error: err.Error()})
		}
		return send(OutboundMessage{Type: TypeReset, SessionID: sessionID})
	default:
		return send(OutboundMessage{Type: TypeError, SessionID: sessionID, Error: "unsupported message type"})
	}
}

func (h *Handler) track(conn *websocket.Conn, sessionID string) {
	h.mu.Lock()
	h.conns[conn] = sessionID
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// OpenConnections reports how many sockets are currently attached.
func (h *Handler) OpenConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
