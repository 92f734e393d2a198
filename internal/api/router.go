package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/navwatch/internal/config"
	"github.com/yegors/navwatch/internal/websocket"
	"github.com/yegors/navwatch/pkg/logger"
)

// Router wires the handlers into a chi mux
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	cfg      config.ServerConfig
	logger   *logger.Logger
}

// NewRouter creates the router. wsServer may be nil when streaming is disabled.
func NewRouter(handler *Handler, wsServer *websocket.Server, cfg config.ServerConfig, log *logger.Logger) *Router {
	return &Router{
		handler:  handler,
		wsServer: wsServer,
		cfg:      cfg,
		logger:   log.Named("router"),
	}
}

// Routes returns the HTTP handler for every endpoint
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(rt.cfg.CORSAllowedOrigins))

	r.Get("/health", rt.handler.GetHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sim-info", rt.handler.GetSimInfo)
		r.Get("/flight-data", rt.handler.GetFlightData)
		r.Get("/status", rt.handler.GetStatusText)
		r.Get("/phase", rt.handler.GetPhase)
		r.Get("/airports/{icao}", rt.handler.GetAirport)
		r.Get("/events", rt.handler.GetEvents)

		if rt.handler.sim != nil {
			r.Get("/simulation", rt.handler.GetSimulation)
			r.Post("/simulation/controls", rt.handler.UpdateSimulationControls)
		}
	})

	if rt.wsServer != nil {
		r.Get("/ws", rt.wsServer.HandleConnection)
	}

	if rt.cfg.StaticFilesDir != "" {
		r.Handle("/*", NewStaticFileHandler(rt.cfg.StaticFilesDir, rt.logger))
	}

	return r
}

// requestLogger logs each request through the application logger
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// corsMiddleware adds CORS headers for allowed origins. "*" allows any origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowed, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
