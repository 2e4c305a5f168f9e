// meshsig signaling daemon -- WebRTC-style session signaling, relay, and
// persistent-link overlay.
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
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/meshsig/meshsig/internal/api"
	"github.com/meshsig/meshsig/internal/config"
	"github.com/meshsig/meshsig/internal/links"
	"github.com/meshsig/meshsig/internal/metrics"
	"github.com/meshsig/meshsig/internal/signaling"
	"github.com/meshsig/meshsig/internal/transport"
	appversion "github.com/meshsig/meshsig/internal/version"
	"github.com/meshsig/meshsig/internal/wallet"
)

// defaultPort is the daemon's default listen port when no config file is
// given and no positional argument overrides it.
const defaultPort = 8765

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
			slog.String("error", err.Error()))
		return 1
	}

	if err := applyPortArg(cfg, flag.Arg(0)); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("invalid port argument",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("meshsigd starting",
		slog.String("version", appversion.Version),
		slog.String("transport_addr", cfg.Transport.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr))

	store, err := links.Open(links.Options{
		Path:          cfg.Store.Path,
		InMemory:      cfg.Store.InMemory,
		EncryptionKey: cfg.Store.EncryptionKey(),
	})
	if err != nil {
		logger.Error("failed to open link store", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close link store", slog.String("error", err.Error()))
		}
	}()

	if err := runServers(cfg, store, logger, logLevel, *configPath); err != nil {
		logger.Error("meshsigd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("meshsigd stopped")
	return 0
}

// runServers wires the signaling registry, transport listener, persistent
// link overlay, and HTTP surfaces together, and runs every background loop
// under one errgroup with a signal-aware context.
func runServers(cfg *config.Config, store *links.Store, logger *slog.Logger, logLevel *slog.LevelVar, configPath string) error {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	registry := signaling.NewRegistry(logger)
	router := signaling.NewRouter(registry, logger, signaling.WithRouterMetrics(collector))
	reaper := signaling.NewReaper(registry, cfg.Reaper.Interval, cfg.Reaper.MaxAge, logger,
		signaling.WithReaperMetrics(collector))

	oracle := newWalletOracle(cfg.Wallet)
	balances := wallet.NewCache(oracle, cfg.Wallet.CacheCapacity, cfg.Wallet.CacheTTL, logger,
		wallet.WithCacheMetrics(collector))
	linkMgr := links.NewManager(store, balances, registry, cfg.Links.Thresholds(), logger)
	autoRegen := links.NewAutoRegenerator(linkMgr, registry, cfg.Links.AutoRegenInterval, logger,
		links.WithAutoRegenMetrics(collector))

	if changed, err := linkMgr.Reconcile(context.Background()); err != nil {
		logger.Warn("startup tier reconciliation failed", slog.Any("error", err))
	} else if changed > 0 {
		logger.Info("startup tier reconciliation applied", slog.Int("links_changed", changed))
	}

	listener := transport.NewListener(router, logger, cfg.Transport.AllowedOrigins)
	apiServer := api.NewServer(registry, store, linkMgr, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", listener)
	mux.Handle("/healthz", apiServer)
	mux.Handle("/api/", apiServer)
	transportSrv := &http.Server{
		Addr:              cfg.Transport.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("transport listening", slog.String("addr", cfg.Transport.Addr))
		return listenAndServe(gCtx, transportSrv, cfg.Transport.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		return reaper.Run(gCtx)
	})
	g.Go(func() error {
		return autoRegen.Run(gCtx)
	})
	g.Go(func() error {
		return runSessionGauge(gCtx, registry, collector)
	})
	g.Go(func() error {
		return runLinkTierGauge(gCtx, store, collector, logger)
	})
	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, transportSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runSessionGauge periodically copies the registry's session/client counts
// into the Prometheus collector, since Registry has no change-notification
// hook of its own.
func runSessionGauge(ctx context.Context, registry *signaling.Registry, collector *metrics.Collector) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sessions, clients := registry.Count()
			collector.SetSessionCounts(sessions, clients)
		}
	}
}

// runLinkTierGauge periodically copies the link store's per-tier
// population into the Prometheus collector.
func runLinkTierGauge(ctx context.Context, store *links.Store, collector *metrics.Collector, logger *slog.Logger) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			counts, err := store.CountByTier()
			if err != nil {
				logger.Warn("count links by tier", slog.String("error", err.Error()))
				continue
			}
			for tier, count := range counts {
				collector.SetLinksByTier(string(tier), count)
			}
		}
	}
}

// newWalletOracle selects an HTTP-backed oracle when cfg.OracleURL is set,
// falling back to an empty static oracle -- this leaves real chain
// integration unprescribed, so an operator wires a real oracle by setting
// wallet.oracle_url.
func newWalletOracle(cfg config.WalletConfig) wallet.Oracle {
	if cfg.OracleURL != "" {
		return wallet.NewHTTPOracle(cfg.OracleURL, nil)
	}
	return wallet.NewStaticOracle(nil)
}

// applyPortArg overrides cfg.Transport.Addr with a positional port
// argument, if one was given. An empty arg is a no-op; cfg already carries
// the configured or default address.
func applyPortArg(cfg *config.Config, portArg string) error {
	if portArg == "" {
		return nil
	}
	port, err := strconv.Atoi(portArg)
	if err != nil {
		return fmt.Errorf("parse port %q: %w", portArg, err)
	}
	cfg.Transport.Addr = net.JoinHostPort("", strconv.Itoa(port))
	return nil
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
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

// runWatchdog sends periodic watchdog keepalives to systemd, at half the
// configured watchdog interval. A no-op if the watchdog is not configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	tickInterval := interval / 2
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only
// -------------------------------------------------------------------------

// handleSIGHUP reloads the log level from configPath on every SIGHUP,
// blocking until ctx is canceled. Session and link state are left
// untouched; there is nothing in this daemon's config that needs a
// running signaling session reconciled, unlike a declarative
// session set.
func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading log level")
			reloadLogLevel(configPath, logLevel, logger)
		}
	}
}

// reloadLogLevel reloads configPath and applies its log level to
// logLevel. Errors are logged, not propagated -- the previous level
// remains in effect.
func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

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
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
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

// loadConfig loads configuration from a file path, or the default port and
// settings if no path was given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	cfg := config.DefaultConfig()
	cfg.Transport.Addr = net.JoinHostPort("", strconv.Itoa(defaultPort))
	return cfg, nil
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
