package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/digitalelevon/digisinans-agency-web/internal/completion"
	"github.com/digitalelevon/digisinans-agency-web/internal/extract"
	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

const (
	defaultWorkers     = 2
	defaultReceiveWait = 2 // seconds
	defaultReceiveMax  = 5 // messages

	captureTimeout = 5 * time.Second
)

// ReplyMessenger pushes an assistant reply to whatever transport the visitor
// is connected on. The WebSocket handler implements it.
type ReplyMessenger interface {
	SendReply(ctx context.Context, sessionID string, reply Turn) error
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithMessenger attaches the transport used to push replies.
func WithMessenger(m ReplyMessenger) WorkerOption {
	return func(w *Worker) {
		w.messenger = m
	}
}

// WithTranscriptStore attaches the reconnect-history store.
func WithTranscriptStore(s TranscriptStore) WorkerOption {
	return func(w *Worker) {
		w.transcript = s
	}
}

// WithCapture attaches the lead capture manager.
func WithCapture(c *leads.CaptureManager) WorkerOption {
	return func(w *Worker) {
		w.capture = c
	}
}

// WithSharedState switches the worker to cross-process mode: conversation
// context is rebuilt from the transcript store, and turn-taking and lead
// identity go through the shared state instead of the local registry.
func WithSharedState(s SharedSessionState) WorkerOption {
	return func(w *Worker) {
		w.shared = s
	}
}

// Worker consumes queued user turns and executes each one end-to-end: the
// completion call, the assistant turn, the reply push, and finally the
// silent lead-capture side channel.
type Worker struct {
	queue      queueClient
	sessions   *Registry
	adapter    *completion.Adapter
	capture    *leads.CaptureManager
	transcript TranscriptStore
	shared     SharedSessionState
	messenger  ReplyMessenger
	logger     *logging.Logger

	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker over the given queue, session registry, and
// completion adapter.
func NewWorker(queue queueClient, sessions *Registry, adapter *completion.Adapter, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("chat: queue cannot be nil")
	}
	if sessions == nil {
		panic("chat: session registry cannot be nil")
	}
	if adapter == nil {
		panic("chat: completion adapter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		queue:    queue,
		sessions: sessions,
		adapter:  adapter,
		logger:   logger,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the polling goroutines and returns immediately.
func (w *Worker) Run(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.poll(ctx)
		}()
	}
}

// Shutdown stops polling and waits for in-flight turns to finish or ctx to
// expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, defaultReceiveMax, defaultReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("chat worker: receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload turnPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("chat worker: undecodable job dropped", "error", err, "message_id", msg.ID)
		_ = w.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	w.ProcessTurn(ctx, payload.Turn)

	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("chat worker: delete failed", "error", err, "job_id", payload.ID)
	}
}

// ProcessTurn executes one user turn. The session is guaranteed to get
// exactly one assistant turn appended whatever the completion outcome, and
// lead capture runs only after a successful completion.
func (w *Worker) ProcessTurn(ctx context.Context, req TurnRequest) {
	if w.shared != nil {
		w.processSharedTurn(ctx, req)
		return
	}

	sess := w.sessions.GetOrCreate(req.SessionID)
	// When this worker runs in a separate process the submission state is
	// reconstructed here from the job itself.
	if !sess.ReplyPending() {
		if err := sess.BeginTurn(req.Text); err != nil {
			w.logger.Warn("chat worker: stale job skipped", "error", err, "session_id", req.SessionID)
			return
		}
	}

	turns := sess.Turns()
	result := w.adapter.Reply(ctx, toCompletionTurns(turns))

	text := result.Text
	if !result.OK {
		text = result.Message
	}
	sess.CompleteTurn(text)

	if w.transcript != nil {
		if err := w.transcript.Append(ctx, sess.ID, TranscriptMessage{Role: RoleAssistant, Body: text}); err != nil {
			w.logger.Warn("chat worker: transcript append failed", "error", err, "session_id", sess.ID)
		}
	}

	if w.messenger != nil {
		if err := w.messenger.SendReply(ctx, sess.ID, Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}); err != nil {
			w.logger.Error("chat worker: reply push failed", "error", err, "session_id", sess.ID)
		}
	}

	// The capture side channel runs only after a successful completion and
	// never surfaces to the conversation.
	if result.OK && w.capture != nil {
		snap := sess.Snapshot()
		captureCtx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()
		if leadID := w.capture.Capture(captureCtx, snap, extract.Scan(snap.CurrentMessage)); leadID != "" {
			sess.SetLeadID(leadID)
		}
	}
}

// processSharedTurn is the cross-process variant: the API server appended
// the user turn to the transcript before enqueueing, so the transcript is the
// authoritative conversation. The shared pending flag gates submissions per
// session, so at most one of these runs per session at a time.
func (w *Worker) processSharedTurn(ctx context.Context, req TurnRequest) {
	sessionID := req.SessionID

	var msgs []TranscriptMessage
	if w.transcript != nil {
		var err error
		if msgs, err = w.transcript.List(ctx, sessionID, 0); err != nil {
			w.logger.Warn("chat worker: transcript load failed", "error", err, "session_id", sessionID)
			msgs = nil
		}
	}

	turns := make([]completion.Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		turns = append(turns, completion.Turn{Role: m.Role, Text: m.Body})
	}
	// The submitted turn is normally the transcript tail; recover if the
	// API-side append was lost.
	if n := len(turns); n == 0 || turns[n-1].Role != RoleUser || turns[n-1].Text != req.Text {
		turns = append(turns, completion.Turn{Role: RoleUser, Text: req.Text})
	}

	result := w.adapter.Reply(ctx, turns)

	text := result.Text
	if !result.OK {
		text = result.Message
	}

	if w.transcript != nil {
		if err := w.transcript.Append(ctx, sessionID, TranscriptMessage{Role: RoleAssistant, Body: text}); err != nil {
			w.logger.Warn("chat worker: transcript append failed", "error", err, "session_id", sessionID)
		}
	}

	if err := w.shared.SetReplyPending(ctx, sessionID, false); err != nil {
		w.logger.Error("chat worker: shared pending flag not cleared", "error", err, "session_id", sessionID)
	}

	if w.messenger != nil {
		if err := w.messenger.SendReply(ctx, sessionID, Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}); err != nil {
			w.logger.Error("chat worker: reply push failed", "error", err, "session_id", sessionID)
		}
	}

	if result.OK && w.capture != nil {
		captureCtx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()

		snap := snapshotFromTranscript(sessionID, msgs, req.Text)
		leadID, err := w.shared.LeadID(captureCtx, sessionID)
		if err != nil {
			// Without the shared lead ID a create could duplicate; skip
			// this turn and let the next one retry.
			w.logger.Error("chat worker: shared lead id unavailable, capture skipped", "error", err, "session_id", sessionID)
			return
		}
		snap.LeadID = leadID

		if id := w.capture.Capture(captureCtx, snap, extract.Scan(snap.CurrentMessage)); id != "" {
			if _, err := w.shared.ClaimLeadID(captureCtx, sessionID, id); err != nil {
				w.logger.Error("chat worker: lead id claim failed", "error", err, "session_id", sessionID, "lead_id", id)
			}
		}
	}
}

// snapshotFromTranscript rebuilds the capture snapshot from persisted
// history. current is the turn being processed, which may not yet be in msgs.
func snapshotFromTranscript(sessionID string, msgs []TranscriptMessage, current string) leads.SessionSnapshot {
	var userTurns []string
	for _, m := range msgs {
		if m.Role == RoleUser {
			userTurns = append(userTurns, m.Body)
		}
	}
	if n := len(userTurns); n == 0 || userTurns[n-1] != current {
		userTurns = append(userTurns, current)
	}

	snap := leads.SessionSnapshot{SessionID: sessionID}
	n := len(userTurns)
	snap.CurrentMessage = userTurns[n-1]
	snap.FirstUserMessage = userTurns[0]
	if n > 1 {
		snap.PrevUserMessage = userTurns[n-2]
	}
	return snap
}

func toCompletionTurns(turns []Turn) []completion.Turn {
	out := make([]completion.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, completion.Turn{Role: t.Role, Text: t.Text})
	}
	return out
}
