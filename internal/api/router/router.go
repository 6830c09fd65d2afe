package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bizlinkhq/bizlink-server/internal/http/handlers"
	httpmiddleware "github.com/bizlinkhq/bizlink-server/internal/http/middleware"
	"github.com/bizlinkhq/bizlink-server/internal/notify"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	Hub                *notify.Hub
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// The websocket upgrade needs the raw ResponseWriter, so the hub is
	// mounted outside the request logger.
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	r.Group(func(api chi.Router) {
		if cfg.Logger != nil {
			api.Use(httpmiddleware.RequestLogger(cfg.Logger))
		}
		api.Route("/api", cfg.ChatHandler.Routes)
	})

	return r
}
