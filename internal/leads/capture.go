package leads

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/digitalelevon/digisinans-agency-web/internal/extract"
	"github.com/digitalelevon/digisinans-agency-web/internal/observability/metrics"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

const (
	defaultNameReplyMaxChars = 40
	defaultPlaceholderName   = "Website Visitor"
	chatWidgetSource         = "chat-widget"
)

// Notifier is told about newly captured leads. Implementations are
// best-effort; errors are logged by the caller and never block capture.
type Notifier interface {
	LeadCreated(ctx context.Context, lead *Lead) error
}

// SessionSnapshot is the conversation state the capture decision needs. The
// chat session owns this data; the manager only reads it.
type SessionSnapshot struct {
	SessionID string
	// LeadID is non-empty once a lead has been created for this session.
	LeadID string
	// CurrentMessage is the user turn that just completed.
	CurrentMessage string
	// PrevUserMessage is the user turn before the current one, if any.
	PrevUserMessage string
	// FirstUserMessage is the opening user turn of the session, if any.
	FirstUserMessage string
}

// CaptureOption configures a CaptureManager.
type CaptureOption func(*CaptureManager)

// WithNameReplyMaxChars overrides the rune cutoff below which the previous
// user message is presumed to be a name.
func WithNameReplyMaxChars(n int) CaptureOption {
	return func(m *CaptureManager) {
		if n > 0 {
			m.nameMaxChars = n
		}
	}
}

// WithPlaceholderName overrides the name used when no short prior message
// exists.
func WithPlaceholderName(name string) CaptureOption {
	return func(m *CaptureManager) {
		if strings.TrimSpace(name) != "" {
			m.placeholder = name
		}
	}
}

// WithNotifier attaches a new-lead notifier.
func WithNotifier(n Notifier) CaptureOption {
	return func(m *CaptureManager) {
		m.notifier = n
	}
}

// WithCaptureMetrics attaches pipeline metrics.
func WithCaptureMetrics(cm *metrics.ChatMetrics) CaptureOption {
	return func(m *CaptureManager) {
		m.metrics = cm
	}
}

// CaptureManager decides when to create a lead and when to enrich an
// existing one, based on entities extracted from a user turn. It issues at
// most one repository mutation per turn. Store failures are logged and
// swallowed: the conversation must never see them, and the next user turn is
// the retry.
type CaptureManager struct {
	repo         Repository
	notifier     Notifier
	metrics      *metrics.ChatMetrics
	logger       *logging.Logger
	nameMaxChars int
	placeholder  string
}

// NewCaptureManager creates a capture manager around the given repository.
func NewCaptureManager(repo Repository, logger *logging.Logger, opts ...CaptureOption) *CaptureManager {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &CaptureManager{
		repo:         repo,
		logger:       logger,
		nameMaxChars: defaultNameReplyMaxChars,
		placeholder:  defaultPlaceholderName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capture evaluates the decision rule for one completed user turn and
// returns the ID of a newly created lead, or "" when no lead was created.
// Callers retain the returned ID on the session so later turns enrich the
// same record.
func (m *CaptureManager) Capture(ctx context.Context, snap SessionSnapshot, ents extract.Entities) string {
	m.recordHits(ents)

	switch {
	case ents.Phone != "" && snap.LeadID == "":
		return m.create(ctx, snap, ents)
	case snap.LeadID != "":
		m.enrich(ctx, snap.LeadID, ents)
		return ""
	default:
		return ""
	}
}

func (m *CaptureManager) create(ctx context.Context, snap SessionSnapshot, ents extract.Entities) string {
	req := &CreateLeadRequest{
		Name:    m.nameFromPriorReply(snap.PrevUserMessage),
		Phone:   ents.Phone,
		Email:   ents.Email,
		Service: ents.Service,
		Message: snap.FirstUserMessage,
		Source:  chatWidgetSource,
	}
	if req.Message == "" {
		req.Message = snap.CurrentMessage
	}

	lead, err := m.repo.Create(ctx, req)
	if err != nil {
		m.metrics.ObserveLeadMutation("insert", "error")
		m.logger.Error("lead capture: insert failed", "error", err, "session_id", snap.SessionID)
		return ""
	}
	m.metrics.ObserveLeadMutation("insert", "ok")
	m.logger.Info("lead captured", "lead_id", lead.ID, "session_id", snap.SessionID, "name", lead.Name)

	if m.notifier != nil {
		if err := m.notifier.LeadCreated(ctx, lead); err != nil {
			m.logger.Warn("lead capture: notification failed", "error", err, "lead_id", lead.ID)
		}
	}
	return lead.ID
}

func (m *CaptureManager) enrich(ctx context.Context, leadID string, ents extract.Entities) {
	var upd UpdateLeadRequest
	if ents.Email != "" {
		upd.Email = &ents.Email
	}
	if ents.Service != "" {
		upd.Service = &ents.Service
	}
	if upd.IsEmpty() {
		return
	}

	if err := m.repo.Update(ctx, leadID, &upd); err != nil {
		m.metrics.ObserveLeadMutation("update", "error")
		m.logger.Error("lead capture: update failed", "error", err, "lead_id", leadID)
		return
	}
	m.metrics.ObserveLeadMutation("update", "ok")
	m.logger.Info("lead enriched", "lead_id", leadID, "email_set", upd.Email != nil, "service_set", upd.Service != nil)
}

// nameFromPriorReply applies the short-reply heuristic: a short message
// immediately before the phone number is presumed to be the visitor's name,
// since the assistant asks for the name one step earlier in the funnel.
func (m *CaptureManager) nameFromPriorReply(prev string) string {
	prev = strings.TrimSpace(prev)
	if prev == "" || utf8.RuneCountInString(prev) > m.nameMaxChars {
		return m.placeholder
	}
	return prev
}

func (m *CaptureManager) recordHits(ents extract.Entities) {
	if ents.Phone != "" {
		m.metrics.ObserveExtractionHit("phone")
	}
	if ents.Email != "" {
		m.metrics.ObserveExtractionHit("email")
	}
	if ents.Service != "" {
		m.metrics.ObserveExtractionHit("service")
	}
}
