package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalelevon/digisinans-agency-web/internal/chat"
	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

type noopPublisher struct{}

func (noopPublisher) EnqueueTurn(context.Context, string, chat.TurnRequest) error { return nil }

func newTestRouter(t *testing.T, adminSecret string) http.Handler {
	t.Helper()
	logger := logging.NewWithWriter("error", testWriter{t})

	chatHandler := chat.NewHandler(noopPublisher{}, chat.NewRegistry(), chat.NewMemoryTranscriptStore(), []byte("// widget"), logger)

	repo := leads.NewInMemoryRepository()
	_, err := repo.Create(context.Background(), &leads.CreateLeadRequest{
		Name:    "John Doe",
		Phone:   "+91 9876543210",
		Message: "Hi, I need help with SEO",
		Source:  "chat-widget",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()

	return New(&Config{
		Logger:          logger,
		ChatHandler:     chatHandler,
		LeadsHandler:    leads.NewHandler(repo, logger),
		AdminAuthSecret: adminSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWidgetJSEndpoint(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widget.js", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
}

func TestChatMessageEndpoint(t *testing.T) {
	r := newTestRouter(t, "secret")

	body := `{"session_id":"sess-1","text":"Hello"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
}

func TestChatHistoryEndpoint(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history?session=sess-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminLeadsRequiresToken(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLeadsWithToken(t *testing.T) {
	secret := "secret"
	r := newTestRouter(t, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Leads []leads.Lead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "John Doe", resp.Leads[0].Name)
}
