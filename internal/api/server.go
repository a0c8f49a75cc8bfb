// Package api exposes the engine to the presentation layer: action
// invocation, history reads, log streaming and schedule administration.
// Request validation and authentication live upstream; this surface only
// consumes the resolved caller identity.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/app/dispatch"
	"github.com/opencampus/campusd/internal/app/logstream"
	"github.com/opencampus/campusd/internal/app/scheduling"
	"github.com/opencampus/campusd/internal/config"
	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/pkg/common/logger"
	"github.com/opencampus/campusd/pkg/common/otel"
)

// Server wires the HTTP surface over the application services.
type Server struct {
	cfg        *config.Config
	logger     *logger.Logger
	router     *chi.Mux
	dispatcher *dispatch.Dispatcher
	streamer   *logstream.Streamer
	admin      *scheduling.Admin
	entities   entity.Repository
	logs       journal.MetadataRepository
	pool       *pgxpool.Pool
	tracer     trace.Tracer
}

// NewServer creates the server and binds all routes.
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	tracer trace.Tracer,
	dispatcher *dispatch.Dispatcher,
	streamer *logstream.Streamer,
	admin *scheduling.Admin,
	entities entity.Repository,
	logs journal.MetadataRepository,
	pool *pgxpool.Pool,
) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		logger:     log,
		router:     r,
		dispatcher: dispatcher,
		streamer:   streamer,
		admin:      admin,
		entities:   entities,
		logs:       logs,
		pool:       pool,
		tracer:     tracer,
	}

	s.routes()
	return s
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Post("/entities/{id}/actions/{name}", s.handleInvoke)
		r.Get("/entities/{id}/history", s.handleHistory)
		r.Patch("/entities/{id}/blocked", s.handleSetBlocked)

		r.Get("/logs", s.handleListLogs)
		r.Get("/logs/{id}", s.handleGetLog)
		r.Get("/logs/{id}/stream", s.handleStreamLog)

		r.Post("/schedules", s.handleCreateSchedule)
		r.Get("/schedules", s.handleListSchedules)
		r.Get("/schedules/{id}", s.handleGetSchedule)
		r.Put("/schedules/{id}", s.handleUpdateSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Router returns the bound handler for mounting in an http.Server.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Web.Host, s.cfg.Web.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Web.ReadTimeout,
		WriteTimeout: s.cfg.Web.WriteTimeout,
		IdleTimeout:  s.cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(s.logger, logger.LevelError),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server", "addr", server.Addr)
	return server.ListenAndServe()
}
