// Package router assembles the HTTP surface: the public widget endpoints,
// the Prometheus scrape endpoint, and the JWT-protected admin API.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digitalelevon/digisinans-agency-web/internal/chat"
	httpmiddleware "github.com/digitalelevon/digisinans-agency-web/internal/http/middleware"
	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *chat.Handler
	LeadsHandler       *leads.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests/sec and burst per IP on the public chat endpoints. Zero
	// disables rate limiting (tests, local development).
	ChatRateLimit float64
	ChatRateBurst int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Get("/widget.js", cfg.ChatHandler.HandleWidgetJS)
		r.Route("/chat", func(c chi.Router) {
			if cfg.ChatRateLimit > 0 {
				c.Use(httpmiddleware.RateLimit(cfg.ChatRateLimit, cfg.ChatRateBurst))
			}
			c.Get("/ws", cfg.ChatHandler.HandleWebSocket)
			c.Post("/message", cfg.ChatHandler.HandleMessage)
			c.Get("/history", cfg.ChatHandler.HandleHistory)
		})
	}

	if cfg.LeadsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/leads", cfg.LeadsHandler.ListLeads)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
