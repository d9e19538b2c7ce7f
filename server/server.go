package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telecare/internal"
)

// Router assembles the full HTTP surface: the WebSocket endpoint, the REST
// API, and the liveness probe.
func Router(log *slog.Logger, gateway *Gateway, api *API) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", gateway.HandleWS)
	r.Route("/api", api.Routes)

	return r
}

// New builds the http.Server. WebSocket connections outlive any sane
// request timeout, so only the handshake-side timeouts are set.
func New(log *slog.Logger, cfg internal.Config, gateway *Gateway, api *API) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           Router(log, gateway, api),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if r.URL.Path == "/healthz" {
				return
			}
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start))
		})
	}
}
