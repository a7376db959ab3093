// Package chat drives one widget conversation end-to-end: per-session
// turn-taking against the completion adapter, transcript ownership, and the
// silent hand-off of completed user turns to lead capture.
package chat

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session states as reported to the UI boundary.
const (
	StateIdle          = "idle"
	StateAwaitingReply = "awaiting_reply"
	StateClosed        = "closed"
)

var (
	// ErrEmptyMessage is returned when a submitted message is blank.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// ErrReplyInFlight is returned when a reply is already pending for the
	// session.
	ErrReplyInFlight = errors.New("chat: a reply is already in flight")
)

// Turn is one transcript entry.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session owns one visitor conversation: the append-only transcript, the
// turn-taking state, and the lead ID once one has been captured. All methods
// are safe for concurrent use.
type Session struct {
	ID string

	mu           sync.Mutex
	turns        []Turn
	replyPending bool
	closed       bool
	leadID       string
}

// State reports the session state for rendering.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.replyPending:
		return StateAwaitingReply
	case s.closed:
		return StateClosed
	default:
		return StateIdle
	}
}

// ReplyPending reports whether a completion call is in flight.
func (s *Session) ReplyPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyPending
}

// BeginTurn validates and records a user submission: the turn is appended,
// and the session moves to awaiting-reply. A closed session is implicitly
// reopened, since a submission can only come from a reopened widget.
func (s *Session) BeginTurn(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.replyPending {
		return ErrReplyInFlight
	}
	s.closed = false
	s.replyPending = true
	s.turns = append(s.turns, Turn{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()})
	return nil
}

// CompleteTurn appends the assistant's reply and releases the turn lock. If
// the widget was closed while the reply was in flight, the turn is still
// appended (reopening shows a consistent history) but the session stays
// closed.
func (s *Session) CompleteTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyPending = false
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()})
}

// ResolveTurn releases the turn lock without appending a reply. It is used
// when another process completed the turn and the assistant text already
// lives in the shared transcript rather than this session.
func (s *Session) ResolveTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyPending = false
}

// Close marks the widget dismissed. An in-flight completion is not
// cancelled; its reply will land in the transcript via CompleteTurn.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Turns returns a copy of the transcript, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LeadID returns the lead captured for this session, if any.
func (s *Session) LeadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadID
}

// SetLeadID retains a newly created lead ID. The first write wins; the
// at-most-one-lead-per-session invariant means it is never replaced.
func (s *Session) SetLeadID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leadID == "" {
		s.leadID = id
	}
}

// Snapshot assembles the conversation state the lead-capture decision needs.
// Current is the latest user turn, Prev the user turn before it, First the
// session's opening user turn.
func (s *Session) Snapshot() leads.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := leads.SessionSnapshot{
		SessionID: s.ID,
		LeadID:    s.leadID,
	}
	var userTurns []string
	for _, t := range s.turns {
		if t.Role == RoleUser {
			userTurns = append(userTurns, t.Text)
		}
	}
	if n := len(userTurns); n > 0 {
		snap.CurrentMessage = userTurns[n-1]
		snap.FirstUserMessage = userTurns[0]
		if n > 1 {
			snap.PrevUserMessage = userTurns[n-2]
		}
	}
	return snap
}

// Registry hands out sessions by ID. Each widget instance owns exactly one
// session; concurrent widgets never share state.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it if needed. An empty id
// allocates a fresh session with a generated ID.
func (r *Registry) GetOrCreate(id string) *Session {
	if id == "" {
		id = NewSessionID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[id]; ok {
		return sess
	}
	sess := &Session{ID: id}
	r.sessions[id] = sess
	return sess
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// NewSessionID creates a random session identifier.
func NewSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}
