package router

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"perftests-app/internal/config"
	"perftests-app/internal/domain"
	"perftests-app/internal/endpoints"
	"perftests-app/internal/sampledata"
	"perftests-app/internal/telemetry"
)

const RequestIDHeader = "X-Request-ID"

// Deps are the collaborators the handlers are built from.
type Deps struct {
	Repo      domain.MeasurementRepository
	Renderer  domain.ChartRenderer
	Generator *sampledata.Generator
	Store     endpoints.Pinger
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

func NewRouter(deps Deps) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := mux.NewRouter()

	addRoutes(r, deps)

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(deps.Logger, deps.Metrics))

	return r
}

// Routes accept any method. Integer segments that do not match are 404s.
func addRoutes(r *mux.Router, deps Deps) {
	measurementsHandler := &endpoints.Measurements{}
	measurementsHandler.Init(deps.Repo, deps.Renderer, deps.Generator, deps.Logger, deps.Metrics)

	healthHandler := &endpoints.Health{}
	healthHandler.Init(deps.Store, deps.Logger)

	r.HandleFunc("/commit/{name}/{branch}/{build_number:-?[0-9]+}/{time:-?[0-9]+}", measurementsHandler.CommitHandler)
	r.HandleFunc("/show", measurementsHandler.ShowHandler)
	r.HandleFunc("/plot/{test_name}/{from_build:-?[0-9]+}/{build_count:-?[0-9]+}", measurementsHandler.PlotHandler)
	r.HandleFunc("/generateTestData", measurementsHandler.GenerateTestDataHandler)

	r.HandleFunc("/healthz", healthHandler.HealthHandler)
	r.Handle("/metrics", deps.Metrics.Handler())
}

func NewServer(handler http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests for at
// most cfg.ShutdownTimeout.
func Run(deps Deps, cfg config.ServerConfig) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := NewServer(NewRouter(deps), cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", server.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("Shutting down server...", zap.String("signal", sig.String()))
	}

	if err := gracefulShutdown(server, cfg.ShutdownTimeout); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("Server stopped gracefully.")
	return nil
}

func gracefulShutdown(server *http.Server, maximumTime time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), maximumTime)
	defer cancel()

	return server.Shutdown(ctx)
}

// requestIDMiddleware keeps a caller supplied X-Request-ID or assigns one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, metrics *telemetry.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.ObserveHTTP(route, rec.status, elapsed)

			logger.Info("Request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.String("request_id", r.Header.Get(RequestIDHeader)))
		})
	}
}
