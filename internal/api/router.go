package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/ccrp/pkg/logger"
)

// Router wires the API handlers, the websocket feed and the metrics endpoint
type Router struct {
	handler   *Handler
	websocket http.HandlerFunc
	metrics   http.Handler
	logger    *logger.Logger
}

// NewRouter creates a new router. ws and metricsHandler may be nil.
func NewRouter(handler *Handler, ws http.HandlerFunc, metricsHandler http.Handler, log *logger.Logger) *Router {
	return &Router{
		handler:   handler,
		websocket: ws,
		metrics:   metricsHandler,
		logger:    log.Named("router"),
	}
}

// Routes returns the HTTP handler for all routes
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", rt.handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", rt.handler.Solve)
		r.Get("/solutions", rt.handler.ListSolutions)
		r.Get("/solutions/{id}", rt.handler.GetSolution)
	})

	if rt.websocket != nil {
		r.Get("/ws", rt.websocket)
	}
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	rt.logger.Debug("Routes registered",
		logger.Bool("websocket", rt.websocket != nil),
		logger.Bool("metrics", rt.metrics != nil))

	return r
}
