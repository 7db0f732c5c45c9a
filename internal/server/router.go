package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		if s.authMw != nil {
			v1.Use(s.authMw.Middleware)
		}

		// The event stream is long lived and must not sit behind the request timeout.
		v1.Get("/ws", s.handleEventStream)

		v1.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(60 * time.Second))

			api.Post("/calls", s.handleCreateCall)
			api.Get("/calls", s.handleListCalls)
			api.Get("/calls/active", s.handleListActiveCalls)
			api.Get("/calls/by-number/{callNumber}", s.handleGetCallByNumber)
			api.Get("/calls/{callID}", s.handleGetCall)
			api.Post("/calls/{callID}/dispatch", s.handleDispatchCall)
			api.Patch("/calls/{callID}/status", s.handleUpdateCallStatus)
			api.Post("/calls/{callID}/cancel", s.handleCancelCall)
			api.Patch("/calls/{callID}/priority", s.handleUpdateCallPriority)
			api.Post("/calls/{callID}/location", s.handleReportCallLocation)

			api.Get("/summary", s.handleGetSummary)
			api.Post("/summary/reconcile", s.handleReconcileSummary)

			api.Get("/stations", s.handleListStations)
			api.Get("/stations/{stationID}/calls", s.handleListStationCalls)
			api.Get("/firefighters", s.handleListFirefighters)
			api.Patch("/firefighters/{firefighterID}/duty", s.handleUpdateFirefighterDuty)

			api.Post("/alerts", s.handleBroadcastAlert)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
