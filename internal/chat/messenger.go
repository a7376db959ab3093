package chat

import (
	"context"
	"time"

	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// WebSocketMessenger implements ReplyMessenger by pushing assistant replies
// through the visitor's live WebSocket connection, if one is open. A visitor
// without a live socket still gets the reply on the next history fetch.
type WebSocketMessenger struct {
	handler *Handler
	logger  *logging.Logger
}

// NewWebSocketMessenger creates a messenger bound to the chat handler.
func NewWebSocketMessenger(handler *Handler, logger *logging.Logger) *WebSocketMessenger {
	if handler == nil {
		panic("chat: handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebSocketMessenger{handler: handler, logger: logger}
}

// SendReply pushes the assistant reply to the visitor's WebSocket.
func (m *WebSocketMessenger) SendReply(_ context.Context, sessionID string, reply Turn) error {
	m.handler.SendToSession(sessionID, OutboundMessage{
		Type:      "message",
		Role:      RoleAssistant,
		Text:      reply.Text,
		Timestamp: reply.Timestamp.UTC().Format(time.RFC3339),
	})

	m.logger.Info("chat: reply sent",
		"session_id", sessionID,
		"length", len(reply.Text),
	)
	return nil
}
