package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// TurnRequest is one queued unit of work: a user turn awaiting its
// completion call.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type turnPayload struct {
	ID   string      `json:"id"`
	Turn TurnRequest `json:"turn"`
}

// Publisher enqueues completion jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("chat: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueTurn publishes a user turn for completion.
func (p *Publisher) EnqueueTurn(ctx context.Context, jobID string, req TurnRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	payload := turnPayload{ID: jobID, Turn: req}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chat: failed to encode job payload: %w", err)
	}

	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("chat: failed to enqueue job: %w", err)
	}

	p.logger.Debug("chat job enqueued", "job_id", jobID, "session_id", req.SessionID)
	return nil
}
