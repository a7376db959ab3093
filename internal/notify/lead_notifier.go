package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// LeadNotifier emails the agency team when a new lead is captured. It
// implements leads.Notifier.
type LeadNotifier struct {
	sender EmailSender
	to     string
	logger *logging.Logger
}

// NewLeadNotifier creates a lead notifier. Returns nil when either the sender
// or the destination address is unset, so wiring code can pass it straight
// through as "no notifier".
func NewLeadNotifier(sender EmailSender, to string, logger *logging.Logger) *LeadNotifier {
	if sender == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadNotifier{sender: sender, to: to, logger: logger}
}

// LeadCreated sends a new-lead summary email.
func (n *LeadNotifier) LeadCreated(ctx context.Context, lead *leads.Lead) error {
	if n == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New lead from the website chat.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Phone: %s\n", lead.Phone)
	if lead.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", lead.Email)
	}
	if lead.Service != "" {
		fmt.Fprintf(&b, "Service: %s\n", lead.Service)
	}
	fmt.Fprintf(&b, "Inquiry: %s\n", lead.Message)

	err := n.sender.Send(ctx, EmailMessage{
		To:      n.to,
		Subject: fmt.Sprintf("New lead: %s", lead.Name),
		Body:    b.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: lead notification: %w", err)
	}
	n.logger.Info("lead notification sent", "lead_id", lead.ID)
	return nil
}
