// Package httptransport assembles the HTTP surface: routes, middleware,
// health, and metrics.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	connectionhandler "linknet/internal/connection/handler"
	memberhandler "linknet/internal/member/handler"
	"linknet/internal/platform/middleware"
)

// NewRouter wires all endpoints behind the shared middleware stack.
func NewRouter(logger *slog.Logger, connections *connectionhandler.Handler, members *memberhandler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	connections.Register(r)
	members.Register(r)
	return r
}
