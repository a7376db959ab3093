package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// replyChannel carries assistant replies from worker processes back to
// whichever API replica holds the visitor's WebSocket.
const replyChannel = "chat_replies"

type replyEnvelope struct {
	SessionID string `json:"session_id"`
	Turn      Turn   `json:"turn"`
}

// RedisReplyMessenger publishes assistant replies over Redis pub/sub. The
// completion worker uses it when it runs in a separate process from the
// WebSocket handler.
type RedisReplyMessenger struct {
	redis *redis.Client
}

func NewRedisReplyMessenger(redisClient *redis.Client) *RedisReplyMessenger {
	if redisClient == nil {
		return nil
	}
	return &RedisReplyMessenger{redis: redisClient}
}

func (m *RedisReplyMessenger) SendReply(ctx context.Context, sessionID string, reply Turn) error {
	if m == nil || m.redis == nil {
		return nil
	}
	if sessionID == "" {
		return errors.New("chat: reply sessionID required")
	}
	data, err := json.Marshal(replyEnvelope{SessionID: sessionID, Turn: reply})
	if err != nil {
		return fmt.Errorf("chat: marshal reply: %w", err)
	}
	if err := m.redis.Publish(ctx, replyChannel, data).Err(); err != nil {
		return fmt.Errorf("chat: publish reply: %w", err)
	}
	return nil
}

// ReplySubscriber runs in the API process and forwards published replies to
// the connected WebSocket, if that session is attached to this replica.
type ReplySubscriber struct {
	redis   *redis.Client
	handler *Handler
	logger  *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReplySubscriber(redisClient *redis.Client, handler *Handler, logger *logging.Logger) *ReplySubscriber {
	if redisClient == nil || handler == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplySubscriber{
		redis:   redisClient,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run subscribes and starts forwarding in a goroutine, returning immediately.
func (s *ReplySubscriber) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	sub := s.redis.Subscribe(ctx, replyChannel)
	go func() {
		defer close(s.done)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.forward(msg.Payload)
			}
		}
	}()
}

func (s *ReplySubscriber) forward(payload string) {
	var env replyEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Warn("chat: undecodable reply dropped", "error", err)
		return
	}
	if env.SessionID == "" {
		return
	}
	s.handler.SendToSession(env.SessionID, OutboundMessage{
		Type:      "message",
		Role:      env.Turn.Role,
		Text:      env.Turn.Text,
		Timestamp: env.Turn.Timestamp.Format(time.RFC3339),
	})
}

// Shutdown stops forwarding and waits for the goroutine to exit or ctx to
// expire.
func (s *ReplySubscriber) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
