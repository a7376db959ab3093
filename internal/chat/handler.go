package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/digitalelevon/digisinans-agency-web/internal/completion"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// TurnPublisher enqueues completion jobs.
type TurnPublisher interface {
	EnqueueTurn(ctx context.Context, jobID string, req TurnRequest) error
}

// Handler manages widget connections and messages.
type Handler struct {
	publisher  TurnPublisher
	sessions   *Registry
	transcript TranscriptStore
	shared     SharedSessionState
	logger     *logging.Logger
	widgetJS   []byte

	mu    sync.RWMutex
	conns map[string]*wsConn // sessionID -> active connection
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSharedSessionState attaches the cross-process turn state used when the
// completion worker runs in a separate binary.
func WithSharedSessionState(s SharedSessionState) HandlerOption {
	return func(h *Handler) {
		h.shared = s
	}
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping", "close"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type         string           `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text         string           `json:"text,omitempty"`
	Role         string           `json:"role,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	ReplyPending bool             `json:"reply_pending,omitempty"`
	Messages     []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a chat handler.
func NewHandler(publisher TurnPublisher, sessions *Registry, transcript TranscriptStore, widgetJS []byte, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if sessions == nil {
		sessions = NewRegistry()
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		publisher:  publisher,
		sessions:   sessions,
		transcript: transcript,
		logger:     logger,
		widgetJS:   widgetJS,
		conns:      make(map[string]*wsConn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	sess := h.sessions.GetOrCreate(sessionID)
	sessionID = sess.ID

	pending := sess.ReplyPending()
	if h.shared != nil {
		if p, err := h.shared.ReplyPending(r.Context(), sessionID); err == nil {
			pending = p
		}
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:         "session",
		SessionID:    sessionID,
		ReplyPending: pending,
	})

	// Replay history so a reopened widget resumes the conversation.
	if h.transcript != nil {
		if msgs, err := h.transcript.List(r.Context(), sessionID, 50); err == nil && len(msgs) > 0 {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: toHistory(msgs)})
		}
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.conns[sessionID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[sessionID] == wsc {
			delete(h.conns, sessionID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("chat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("chat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "close":
			sess.Close()
		case "message":
			// Rejections were already pushed over the socket.
			_ = h.processMessage(r.Context(), sessionID, msg.Text)
		}
	}
}

// processMessage runs the submission path: validate against the session
// state machine, persist the user turn, and enqueue the completion job. The
// returned error is a session rejection (ErrReplyInFlight, ErrEmptyMessage);
// an enqueue failure is absorbed into a fallback reply and returns nil.
func (h *Handler) processMessage(ctx context.Context, sessionID, text string) error {
	sess := h.sessions.GetOrCreate(sessionID)

	// A turn completed by a remote worker leaves this process's session
	// flagged pending; the shared state is authoritative.
	if h.shared != nil && sess.ReplyPending() {
		if pending, err := h.shared.ReplyPending(ctx, sessionID); err == nil && !pending {
			sess.ResolveTurn()
		}
	}

	if err := sess.BeginTurn(text); err != nil {
		switch err {
		case ErrReplyInFlight:
			h.SendToSession(sessionID, OutboundMessage{Type: "error", Text: "One moment, a reply is on the way."})
		case ErrEmptyMessage:
			h.SendToSession(sessionID, OutboundMessage{Type: "error", Text: "Please type a message first."})
		default:
			h.SendToSession(sessionID, OutboundMessage{Type: "error", Text: "Sorry, something went wrong."})
		}
		return err
	}

	if h.shared != nil {
		if err := h.shared.SetReplyPending(ctx, sessionID, true); err != nil {
			h.logger.Warn("chat: shared pending flag not set", "error", err, "session_id", sessionID)
		}
	}

	if h.transcript != nil {
		if err := h.transcript.Append(ctx, sessionID, TranscriptMessage{Role: RoleUser, Body: text}); err != nil {
			h.logger.Warn("chat: transcript append failed", "error", err, "session_id", sessionID)
		}
	}

	h.SendToSession(sessionID, OutboundMessage{Type: "typing"})

	if err := h.publisher.EnqueueTurn(ctx, uuid.NewString(), TurnRequest{SessionID: sessionID, Text: text}); err != nil {
		h.logger.Error("chat: failed to enqueue turn", "error", err, "session_id", sessionID)
		// The turn still gets its assistant reply so the session returns
		// to idle instead of wedging in awaiting-reply, and the fallback
		// lands in the transcript so a reopened widget replays it.
		sess.CompleteTurn(completion.FallbackMessage)
		if h.transcript != nil {
			if err := h.transcript.Append(ctx, sessionID, TranscriptMessage{Role: RoleAssistant, Body: completion.FallbackMessage}); err != nil {
				h.logger.Warn("chat: transcript append failed", "error", err, "session_id", sessionID)
			}
		}
		if h.shared != nil {
			if err := h.shared.SetReplyPending(ctx, sessionID, false); err != nil {
				h.logger.Warn("chat: shared pending flag not cleared", "error", err, "session_id", sessionID)
			}
		}
		h.SendToSession(sessionID, OutboundMessage{
			Type: "message",
			Role: RoleAssistant,
			Text: completion.FallbackMessage,
		})
	}
	return nil
}

// SendToSession sends a message to an active WebSocket session, if any.
func (h *Handler) SendToSession(sessionID string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(wsc.conn, msg)
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.GetOrCreate(req.SessionID)
	if err := h.processMessage(r.Context(), sess.ID, req.Text); err != nil {
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusBadRequest
		if err == ErrReplyInFlight {
			status = http.StatusConflict
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":     "rejected",
			"error":      err.Error(),
			"session_id": sess.ID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "queued",
		"session_id": sess.ID,
	})
}

// HandleHistory returns chat history and the reply-pending flag for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	pending := false
	if sess := h.sessions.Get(sessionID); sess != nil {
		pending = sess.ReplyPending()
	}
	if h.shared != nil {
		if p, err := h.shared.ReplyPending(r.Context(), sessionID); err == nil {
			pending = p
		}
	}

	var history []HistoryMessage
	if h.transcript != nil {
		msgs, err := h.transcript.List(r.Context(), sessionID, 100)
		if err != nil {
			h.logger.Error("chat: failed to load history", "error", err, "session_id", sessionID)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		history = toHistory(msgs)
	}
	if history == nil {
		history = []HistoryMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"messages":      history,
		"reply_pending": pending,
	})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

func toHistory(msgs []TranscriptMessage) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Body,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return history
}
