package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTurnTaking(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	assert.Equal(t, StateIdle, sess.State())

	require.NoError(t, sess.BeginTurn("Hi, I run a bakery"))
	assert.Equal(t, StateAwaitingReply, sess.State())

	// Input is accepted only in idle.
	assert.ErrorIs(t, sess.BeginTurn("second message"), ErrReplyInFlight)

	sess.CompleteTurn("Hello! Tell me about your goals.")
	assert.Equal(t, StateIdle, sess.State())

	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
}

func TestSessionResolveTurnUnblocksWithoutAppending(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	require.NoError(t, sess.BeginTurn("Hi"))
	assert.ErrorIs(t, sess.BeginTurn("again"), ErrReplyInFlight)

	// The reply was completed elsewhere; only the lock is released here.
	sess.ResolveTurn()
	assert.Equal(t, StateIdle, sess.State())
	assert.Len(t, sess.Turns(), 1)

	require.NoError(t, sess.BeginTurn("next question"))
}

func TestSessionRejectsBlankInput(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	assert.ErrorIs(t, sess.BeginTurn("   "), ErrEmptyMessage)
	assert.Empty(t, sess.Turns())
}

func TestSessionCloseKeepsTranscriptAndStaysClosed(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	require.NoError(t, sess.BeginTurn("Hi"))

	// Widget dismissed while a reply is in flight.
	sess.Close()
	sess.CompleteTurn("Welcome!")

	// The late reply lands in the transcript but does not reopen the widget.
	assert.Equal(t, StateClosed, sess.State())
	assert.Len(t, sess.Turns(), 2)

	// A new submission reopens the session.
	require.NoError(t, sess.BeginTurn("back again"))
	assert.Equal(t, StateAwaitingReply, sess.State())
}

func TestSessionLeadIDFirstWriteWins(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	sess.SetLeadID("")
	assert.Empty(t, sess.LeadID())

	sess.SetLeadID("lead-1")
	sess.SetLeadID("lead-2")
	assert.Equal(t, "lead-1", sess.LeadID())
}

func TestSessionSnapshot(t *testing.T) {
	sess := &Session{ID: "sess-1"}
	require.NoError(t, sess.BeginTurn("Hi, I run a bakery"))
	sess.CompleteTurn("Welcome! What's your name?")
	require.NoError(t, sess.BeginTurn("John Doe"))
	sess.CompleteTurn("Thanks John. What's your phone number?")
	require.NoError(t, sess.BeginTurn("+91 9876543210"))
	sess.CompleteTurn("Got it!")

	snap := sess.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, "+91 9876543210", snap.CurrentMessage)
	assert.Equal(t, "John Doe", snap.PrevUserMessage)
	assert.Equal(t, "Hi, I run a bakery", snap.FirstUserMessage)
}

func TestRegistryIsolatesSessions(t *testing.T) {
	reg := NewRegistry()

	a := reg.GetOrCreate("a")
	b := reg.GetOrCreate("b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, reg.GetOrCreate("a"))
	assert.Nil(t, reg.Get("missing"))

	fresh := reg.GetOrCreate("")
	assert.NotEmpty(t, fresh.ID)
}

func TestNewSessionID(t *testing.T) {
	s1 := NewSessionID()
	s2 := NewSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32) // 16 bytes = 32 hex chars
}
