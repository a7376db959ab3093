package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	sessionPendingKeyPrefix = "chat_session_pending:"
	sessionLeadKeyPrefix    = "chat_session_lead:"

	// Shared turn state ages out on the same clock as the transcript.
	sessionStateTTL = transcriptTTL
)

// SharedSessionState coordinates turn-taking and lead identity across
// processes. When the completion worker runs in a separate binary, the API
// server and the worker see the same reply-pending flag and the same lead ID
// through this store instead of their private session registries.
type SharedSessionState interface {
	SetReplyPending(ctx context.Context, sessionID string, pending bool) error
	ReplyPending(ctx context.Context, sessionID string) (bool, error)
	// ClaimLeadID records the first lead created for the session and returns
	// the winning ID, which may differ from leadID if another process claimed
	// first.
	ClaimLeadID(ctx context.Context, sessionID, leadID string) (string, error)
	LeadID(ctx context.Context, sessionID string) (string, error)
}

// RedisSessionState is the SharedSessionState used in split deployments.
type RedisSessionState struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisSessionState(redisClient *redis.Client) *RedisSessionState {
	if redisClient == nil {
		return nil
	}
	return &RedisSessionState{
		redis:  redisClient,
		tracer: otel.Tracer("agency.internal.chat.session_state"),
	}
}

func (s *RedisSessionState) SetReplyPending(ctx context.Context, sessionID string, pending bool) error {
	if sessionID == "" {
		return errors.New("chat: session state sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "chat.session_state.set_pending")
	defer span.End()

	key := sessionPendingKeyPrefix + sessionID
	var err error
	if pending {
		err = s.redis.Set(ctx, key, "1", sessionStateTTL).Err()
	} else {
		err = s.redis.Del(ctx, key).Err()
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: set reply pending: %w", err)
	}
	return nil
}

func (s *RedisSessionState) ReplyPending(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, errors.New("chat: session state sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "chat.session_state.pending")
	defer span.End()

	n, err := s.redis.Exists(ctx, sessionPendingKeyPrefix+sessionID).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("chat: read reply pending: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSessionState) ClaimLeadID(ctx context.Context, sessionID, leadID string) (string, error) {
	if sessionID == "" || leadID == "" {
		return "", errors.New("chat: session state sessionID and leadID required")
	}
	ctx, span := s.tracer.Start(ctx, "chat.session_state.claim_lead")
	defer span.End()

	key := sessionLeadKeyPrefix + sessionID
	set, err := s.redis.SetNX(ctx, key, leadID, sessionStateTTL).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat: claim lead id: %w", err)
	}
	if set {
		return leadID, nil
	}
	existing, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat: read claimed lead id: %w", err)
	}
	return existing, nil
}

func (s *RedisSessionState) LeadID(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("chat: session state sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "chat.session_state.lead")
	defer span.End()

	id, err := s.redis.Get(ctx, sessionLeadKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat: read lead id: %w", err)
	}
	return id, nil
}

// MemorySessionState is a SharedSessionState for development and tests.
type MemorySessionState struct {
	mu      sync.Mutex
	pending map[string]bool
	leads   map[string]string
}

func NewMemorySessionState() *MemorySessionState {
	return &MemorySessionState{
		pending: make(map[string]bool),
		leads:   make(map[string]string),
	}
}

func (s *MemorySessionState) SetReplyPending(_ context.Context, sessionID string, pending bool) error {
	if sessionID == "" {
		return errors.New("chat: session state sessionID required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending {
		s.pending[sessionID] = true
	} else {
		delete(s.pending, sessionID)
	}
	return nil
}

func (s *MemorySessionState) ReplyPending(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[sessionID], nil
}

func (s *MemorySessionState) ClaimLeadID(_ context.Context, sessionID, leadID string) (string, error) {
	if sessionID == "" || leadID == "" {
		return "", errors.New("chat: session state sessionID and leadID required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.leads[sessionID]; ok {
		return existing, nil
	}
	s.leads[sessionID] = leadID
	return leadID, nil
}

func (s *MemorySessionState) LeadID(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[sessionID], nil
}
