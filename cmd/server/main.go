package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/energy-monitor/backend/internal/api"
	"github.com/energy-monitor/backend/internal/config"
	"github.com/energy-monitor/backend/internal/dashboard"
	"github.com/energy-monitor/backend/internal/logging"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/storage"
	"github.com/energy-monitor/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const defaultConfigName = "energy-monitor.yaml"

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	configPath := pflag.StringP("config", "c", filepath.Join(filepath.Dir(exePath), defaultConfigName), "path to the YAML configuration file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, configPath string, logger *slog.Logger) error {
	store, err := storage.NewLocalStore(cfg.Storage.CurrentDirectory, cfg.Storage.HistoryDirectory)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	reg := registry.Default()

	loader := func(ctx context.Context) (*dashboard.Dataset, error) {
		return dashboard.Load(store, reg, logger,
			dashboard.WithBinWidth(cfg.BinWidth()),
			dashboard.WithSeriesLimit(cfg.Presenter.TimeSeriesLimit))
	}

	ds, err := loader(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	holder := dashboard.NewHolder(ds)
	logger.Info("history loaded", "sensors", ds.Len(), "records", ds.Records())

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:    store,
		Registry: reg,
		Holder:   holder,
		Loader:   loader,
		Hub:      hub,
		Interval: cfg.Interval(),
		Version:  Version,
		Logger:   logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, logger, api.MiddlewareOptions{
		RequestLogging: cfg.Server.EnableRequestLogging,
		Compression:    cfg.Server.EnableCompression,
	})
	api.RegisterRoutes(e, handlers)

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", "error", err)
			embeddedMode = false
		}
	}

	if every := cfg.ReloadInterval(); every > 0 {
		go reloadLoop(ctx, handlers.Dashboard, every, logger)
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(os.Stdout, cfg, configPath, ds, embeddedMode)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// reloadLoop re-reads the history files every interval until ctx ends.
func reloadLoop(ctx context.Context, h *api.Handler, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Reload(ctx); err != nil {
				logger.Warn("periodic reload failed", "error", err)
			}
		}
	}
}

func printBanner(w io.Writer, cfg *config.AppConfig, configPath string, ds *dashboard.Dataset, embedded bool) {
	listen := cfg.GetServerAddr()

	// Plain lines when piped into a log collector
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(w, "Energy Monitor dashboard %s listening on http://%s (%d sensors)\n", Version, listen, ds.Len())
		return
	}

	mode := "API only"
	if embedded {
		mode = "Dashboard (Embedded)"
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║           Energy Monitor Dashboard                        ║\n")
	fmt.Fprintf(w, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║  Version:    %-45s║\n", Version)
	fmt.Fprintf(w, "║  Build Time: %-45s║\n", BuildTime)
	fmt.Fprintf(w, "║  Mode:       %-45s║\n", mode)
	fmt.Fprintf(w, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║  Config:    %-46s║\n", configPath)
	fmt.Fprintf(w, "║  Listen:    http://%-38s║\n", listen)
	fmt.Fprintf(w, "║  History:   %-46s║\n", cfg.Storage.HistoryDirectory)
	fmt.Fprintf(w, "║  Sensors:   %-46d║\n", ds.Len())
	fmt.Fprintf(w, "╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Fprintf(w, "\n")

	if embedded {
		fmt.Fprintf(w, "Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
