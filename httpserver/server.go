package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/ruteri/collection-factory/api"
	"github.com/ruteri/collection-factory/metrics"
)

type Server struct {
	cfg     *api.HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

// New creates the API server. m may be nil when metrics are disabled.
func New(cfg *api.HTTPServerConfig, handler *Handler, m *metrics.Metrics) (srv *Server, err error) {
	metricsSrv, err := metrics.New(m, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

// Router returns the API and health routes.
func (srv *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(srv.httpLogger)

	srv.handler.RegisterRoutes(mux)

	mux.Get("/livez", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)
	mux.Get("/drain", srv.readiness(false))
	mux.Get("/undrain", srv.readiness(true))

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status, state := http.StatusOK, "ready"
	if !srv.isReady.Load() {
		status, state = http.StatusServiceUnavailable, "not ready"
	}
	writeJSON(w, status, map[string]string{"status": state})
}

// readiness flips the readiness flag. Load balancers stop routing to a drained instance
// while in-flight creations finish.
func (srv *Server) readiness(ready bool) http.HandlerFunc {
	changed, unchanged := "ready", "already ready"
	if !ready {
		changed, unchanged = "draining", "already draining"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if srv.isReady.Swap(ready) == ready {
			writeJSON(w, http.StatusOK, map[string]string{"status": unchanged})
			return
		}
		srv.log.Info("Readiness changed", slog.Bool("ready", ready))
		writeJSON(w, http.StatusOK, map[string]string{"status": changed})
	}
}

func (srv *Server) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go srv.serve("metrics", srv.cfg.MetricsAddr, srv.metricsSrv.ListenAndServe)
	}
	go srv.serve("api", srv.cfg.ListenAddr, srv.srv.ListenAndServe)
}

func (srv *Server) serve(name, addr string, listen func() error) {
	srv.log.Info("Starting listener", slog.String("listener", name), slog.String("addr", addr))
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srv.log.Error("Listener failed", slog.String("listener", name), "err", err)
	}
}

// Shutdown marks the server not ready, waits out the drain period and stops both listeners.
func (srv *Server) Shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining", slog.Duration("duration", srv.cfg.DrainDuration))
		time.Sleep(srv.cfg.DrainDuration)
	}

	srv.stop("api", srv.srv.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.stop("metrics", srv.metricsSrv.Shutdown)
	}
}

func (srv *Server) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", slog.String("listener", name), "err", err)
		return
	}
	srv.log.Info("Listener stopped", slog.String("listener", name))
}
