package flags

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/collection-factory/api"
	"github.com/ruteri/collection-factory/common"
)

// SetupLogger builds the process logger from the logging flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})
	if cCtx.Bool(LogUidFlag.Name) {
		logger = logger.With("uid", uuid.NewString())
	}
	return logger
}

// ConfigureServer returns server settings for listenAddr with the timeouts factoryd runs with.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		WaitTimeout:              20 * time.Second,
	}
}

// SetupTracing installs the stdout span exporter when --trace-stdout is set.
func SetupTracing(cCtx *cli.Context) (shutdown func(context.Context) error, err error) {
	return common.SetupTracing(&common.TracingOpts{
		Enabled: cCtx.Bool(TraceStdoutFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})
}

const (
	loggingCategory = "Logging"
	serverCategory  = "Server"
)

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"FACTORY_SERVER_ADDR"},
	Usage:   "base URL of the factory API",
}

var (
	LogJsonFlag = &cli.BoolFlag{
		Name:     "log-json",
		Category: loggingCategory,
		EnvVars:  []string{"FACTORY_LOG_JSON"},
		Usage:    "emit JSON log lines",
	}
	LogDebugFlag = &cli.BoolFlag{
		Name:     "log-debug",
		Category: loggingCategory,
		EnvVars:  []string{"FACTORY_LOG_DEBUG"},
		Usage:    "include debug level messages",
	}
	LogUidFlag = &cli.BoolFlag{
		Name:     "log-uid",
		Category: loggingCategory,
		Usage:    "tag every log line with a per-process uuid",
	}
	LogServiceFlag = &cli.StringFlag{
		Name:     "log-service",
		Category: loggingCategory,
		Value:    common.PackageName,
		Usage:    "value of the 'service' log attribute",
	}
	TraceStdoutFlag = &cli.BoolFlag{
		Name:     "trace-stdout",
		Category: loggingCategory,
		Usage:    "print OpenTelemetry spans to stdout",
	}
)

var (
	PprofFlag = &cli.BoolFlag{
		Name:     "pprof",
		Category: serverCategory,
		Usage:    "mount net/http/pprof under /debug",
	}
	DrainSecondsFlag = &cli.Int64Flag{
		Name:     "drain-seconds",
		Category: serverCategory,
		Value:    45,
		Usage:    "how long /readyz reports not ready before the listeners close",
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:     "metrics-addr",
		Category: serverCategory,
		Value:    "127.0.0.1:8090",
		EnvVars:  []string{"FACTORY_METRICS_ADDR"},
		Usage:    "Prometheus listen address, empty disables the metrics listener",
	}
)

// CommonFlags are shared by every binary that serves or logs.
var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	TraceStdoutFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
