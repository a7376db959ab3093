package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalelevon/digisinans-agency-web/internal/completion"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

type fakePublisher struct {
	requests []TurnRequest
	err      error
}

func (p *fakePublisher) EnqueueTurn(_ context.Context, _ string, req TurnRequest) error {
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

func newTestHandler(t *testing.T, pub TurnPublisher) (*Handler, *Registry) {
	t.Helper()
	sessions := NewRegistry()
	logger := logging.NewWithWriter("error", testWriter{t})
	h := NewHandler(pub, sessions, NewMemoryTranscriptStore(), []byte("// widget"), logger)
	return h, sessions
}

func TestHandleMessageQueuesTurn(t *testing.T) {
	pub := &fakePublisher{}
	h, sessions := newTestHandler(t, pub)

	body := `{"session_id":"sess-1","text":"Hi there"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, "sess-1", resp["session_id"])

	require.Len(t, pub.requests, 1)
	assert.Equal(t, "Hi there", pub.requests[0].Text)

	sess := sessions.Get("sess-1")
	require.NotNil(t, sess)
	assert.Equal(t, StateAwaitingReply, sess.State())
}

func TestHandleMessageAllocatesSessionID(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"text":"Hello"}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
}

func TestHandleMessageRejectsBlankText(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"session_id":"s","text":"  "}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageRejectsBadJSON(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueFailureStillCompletesTheTurn(t *testing.T) {
	h, sessions := newTestHandler(t, &fakePublisher{err: errors.New("queue down")})

	body := `{"session_id":"sess-1","text":"Hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	// The session must not wedge in awaiting-reply; the fallback becomes
	// the assistant turn.
	sess := sessions.Get("sess-1")
	require.NotNil(t, sess)
	assert.Equal(t, StateIdle, sess.State())
	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, completion.FallbackMessage, turns[1].Text)

	// The fallback also lands in the persisted history, so a reopened
	// widget replays the turn with its reply.
	histRec := httptest.NewRecorder()
	h.HandleHistory(histRec, httptest.NewRequest(http.MethodGet, "/chat/history?session=sess-1", nil))
	require.Equal(t, http.StatusOK, histRec.Code)
	var hist struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, RoleAssistant, hist.Messages[1].Role)
	assert.Equal(t, completion.FallbackMessage, hist.Messages[1].Text)
}

func TestSecondSubmissionWhileAwaitingReplyIsRejected(t *testing.T) {
	pub := &fakePublisher{}
	h, _ := newTestHandler(t, pub)

	first := httptest.NewRecorder()
	h.HandleMessage(first, httptest.NewRequest(http.MethodPost, "/chat/message",
		strings.NewReader(`{"session_id":"sess-1","text":"first"}`)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.HandleMessage(second, httptest.NewRequest(http.MethodPost, "/chat/message",
		strings.NewReader(`{"session_id":"sess-1","text":"second"}`)))

	assert.Equal(t, http.StatusConflict, second.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp["status"])

	require.Len(t, pub.requests, 1)
	assert.Equal(t, "first", pub.requests[0].Text)
}

func TestHandleHistory(t *testing.T) {
	pub := &fakePublisher{}
	h, _ := newTestHandler(t, pub)

	body := `{"session_id":"sess-1","text":"Hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(body))
	h.HandleMessage(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/chat/history?session=sess-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages     []HistoryMessage `json:"messages"`
		ReplyPending bool             `json:"reply_pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "Hi", resp.Messages[0].Text)
	assert.True(t, resp.ReplyPending)
}

func TestHandleHistoryRequiresSession(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/chat/history", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistoryUnknownSessionIsEmpty(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/chat/history?session=nope", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages     []HistoryMessage `json:"messages"`
		ReplyPending bool             `json:"reply_pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
	assert.False(t, resp.ReplyPending)
}

func TestHandleWidgetJS(t *testing.T) {
	h, _ := newTestHandler(t, &fakePublisher{})

	rec := httptest.NewRecorder()
	h.HandleWidgetJS(rec, httptest.NewRequest(http.MethodGet, "/widget.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, "// widget", rec.Body.String())
}
