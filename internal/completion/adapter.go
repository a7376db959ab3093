package completion

import (
	"context"
	"strings"
	"time"

	"github.com/digitalelevon/digisinans-agency-web/internal/observability/metrics"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// Turn is one transcript entry handed in by the conversation layer: a role
// ("user" or "assistant") and the text body.
type Turn struct {
	Role string
	Text string
}

// Result is the adapter's only output shape. When OK is true, Text holds the
// model's reply; otherwise Message holds a user-presentable fallback. The
// adapter never returns an error: every provider failure is folded into a
// Result so the conversation always has something to append as the
// assistant's turn.
type Result struct {
	OK      bool
	Text    string
	Message string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMaxTokens caps the reply length requested from the provider.
func WithMaxTokens(n int32) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) AdapterOption {
	return func(a *Adapter) {
		a.temperature = t
	}
}

// WithAdapterMetrics attaches pipeline metrics.
func WithAdapterMetrics(m *metrics.ChatMetrics) AdapterOption {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// Adapter wraps an LLMClient with the fixed system directive and the
// never-throw failure contract. A nil client means credentials were absent at
// startup; every call then yields the distinguished credentials fallback.
type Adapter struct {
	client      LLMClient
	provider    string
	model       string
	logger      *logging.Logger
	metrics     *metrics.ChatMetrics
	maxTokens   int32
	temperature float32
}

// NewAdapter creates an adapter around the given client. provider is a label
// for logs and metrics ("gemini", "bedrock"); model is passed through on
// every request. client may be nil when no provider is configured.
func NewAdapter(client LLMClient, provider, model string, logger *logging.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Adapter{
		client:      client,
		provider:    provider,
		model:       model,
		logger:      logger,
		maxTokens:   512,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reply sends the ordered transcript (oldest first) plus the system directive
// to the provider and returns a Result. It never returns an error and never
// panics past its boundary.
func (a *Adapter) Reply(ctx context.Context, turns []Turn) Result {
	if a.client == nil {
		a.metrics.ObserveCompletion(a.provider, "no_credentials", 0)
		return Result{Message: CredentialsFallbackMessage}
	}

	messages := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := ChatRoleUser
		if t.Role == ChatRoleAssistant {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: t.Text})
	}

	started := time.Now()
	resp, err := a.client.Complete(ctx, LLMRequest{
		Model:       a.model,
		System:      []string{SystemDirective},
		Messages:    messages,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	elapsed := time.Since(started).Seconds()

	if err != nil {
		a.metrics.ObserveCompletion(a.provider, "error", elapsed)
		a.logger.Error("completion call failed", "provider", a.provider, "error", err)
		return Result{Message: FallbackMessage}
	}
	if strings.TrimSpace(resp.Text) == "" {
		a.metrics.ObserveCompletion(a.provider, "empty", elapsed)
		a.logger.Warn("completion returned empty reply", "provider", a.provider, "stop_reason", resp.StopReason)
		return Result{Message: FallbackMessage}
	}

	a.metrics.ObserveCompletion(a.provider, "ok", elapsed)
	return Result{OK: true, Text: resp.Text}
}
