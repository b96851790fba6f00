// owotrackd daemon -- owoTrack-lineage motion tracker UDP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/owotrack/owotrackd/internal/config"
	"github.com/owotrack/owotrackd/internal/introspect"
	owotrackmetrics "github.com/owotrack/owotrackd/internal/metrics"
	"github.com/owotrack/owotrackd/internal/netio"
	"github.com/owotrack/owotrackd/internal/protocol"
	"github.com/owotrack/owotrackd/internal/registry"
	"github.com/owotrack/owotrackd/internal/server"
	"github.com/owotrack/owotrackd/internal/tracker"
	appversion "github.com/owotrack/owotrackd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("owotrackd starting",
		slog.String("version", appversion.Version),
		slog.Int("port", int(cfg.Server.Port)),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("introspect_addr", cfg.Introspect.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := owotrackmetrics.NewCollector(reg)

	if err := runServers(cfg, collector, reg, logger); err != nil {
		logger.Error("owotrackd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("owotrackd stopped")
	return 0
}

// runServers binds the UDP tracker socket, wires the registry/dispatcher/
// event loop, and runs the UDP loop alongside the metrics and introspection
// HTTP servers under a single errgroup with signal-aware shutdown.
func runServers(
	cfg *config.Config,
	collector *owotrackmetrics.Collector,
	promReg *prometheus.Registry,
	logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := netio.Listen(ctx, cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", cfg.Server.Port, err)
	}

	var ready atomic.Bool
	ready.Store(true)

	reg := registry.New(logger)
	host := tracker.NewMemoryHost(logger)
	codec := protocol.NewCodec()
	console := server.NewSlogConsoleSink(logger)

	dispatcher := server.NewDispatcher(reg, host, codec, conn, console, collector, logger)

	broadcastAddrs, err := netio.BroadcastAddrs()
	if err != nil {
		logger.Warn("enumerate broadcast addresses, discovery will be skipped",
			slog.String("error", err.Error()))
	}

	loop := server.NewLoop(conn, codec, reg, dispatcher, broadcastAddrs, cfg.Server.Port, cfg.Server.ThreadName, collector, logger)

	metricsSrv := newMetricsServer(cfg.Metrics, promReg)
	introspectSrv := newIntrospectServer(cfg.Introspect, reg, ready.Load, logger)

	g, gCtx := errgroup.WithContext(ctx)
	lc := net.ListenConfig{}

	g.Go(func() error {
		return loop.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		logger.Info("introspection server listening", slog.String("addr", cfg.Introspect.Addr))
		return listenAndServe(gCtx, &lc, introspectSrv, cfg.Introspect.Addr)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv, introspectSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// gracefulShutdown notifies systemd and drains the HTTP servers within
// shutdownTimeout. The UDP loop's own socket close happens inside
// Loop.Run's deferred cleanup when ctx is cancelled.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// -------------------------------------------------------------------------
// HTTP servers
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newIntrospectServer(cfg config.IntrospectConfig, reg *registry.Registry, ready introspect.Ready, logger *slog.Logger) *http.Server {
	var handler http.Handler = introspect.NewHandler(reg, ready, logger)
	handler = server.RecoveryMiddleware(logger, handler)
	handler = server.LoggingMiddleware(logger, handler)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Config + logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
