package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the factory API listener and its companion metrics listener.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string // empty disables /metrics
	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long /readyz fails before the listeners close on shutdown.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// WaitTimeout bounds POST /api/v1/children?wait=true. Keep it below WriteTimeout.
	WaitTimeout time.Duration
}
