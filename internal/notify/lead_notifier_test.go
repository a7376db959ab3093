package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

type fakeSender struct {
	sent []EmailMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestLeadCreatedSendsSummary(t *testing.T) {
	sender := &fakeSender{}
	n := NewLeadNotifier(sender, "team@digisinans.com", logging.New("error"))
	require.NotNil(t, n)

	err := n.LeadCreated(context.Background(), &leads.Lead{
		ID:      "lead-1",
		Name:    "John Doe",
		Phone:   "+91 9876543210",
		Email:   "john@bakery.com",
		Service: "SEO",
		Message: "Hi, I run a bakery",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "team@digisinans.com", msg.To)
	assert.Equal(t, "New lead: John Doe", msg.Subject)
	for _, want := range []string{"+91 9876543210", "john@bakery.com", "SEO", "Hi, I run a bakery"} {
		assert.True(t, strings.Contains(msg.Body, want), "body missing %q", want)
	}
}

func TestLeadCreatedWrapsSendError(t *testing.T) {
	n := NewLeadNotifier(&fakeSender{err: errors.New("rate limited")}, "team@digisinans.com", logging.New("error"))
	err := n.LeadCreated(context.Background(), &leads.Lead{Name: "John", Phone: "9876543210"})
	assert.Error(t, err)
}

func TestNewLeadNotifierDisabled(t *testing.T) {
	assert.Nil(t, NewLeadNotifier(nil, "team@digisinans.com", nil))
	assert.Nil(t, NewLeadNotifier(&fakeSender{}, "  ", nil))
}
