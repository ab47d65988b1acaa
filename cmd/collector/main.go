package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/energy-monitor/backend/internal/collector"
	"github.com/energy-monitor/backend/internal/config"
	"github.com/energy-monitor/backend/internal/logging"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/source"
	"github.com/energy-monitor/backend/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Energy Monitor collector - polls smart meters into JSON files",
	Long: `The collector reads the latest payload of every configured smart meter
from the context broker, keeps one current-state file per sensor and appends
a bounded history file that the dashboard server reads.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "energy-monitor.yaml", "path to the YAML configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand builds from the configuration file.
type env struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	store  *storage.LocalStore
	reg    *registry.Registry
}

func loadEnv() (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewLocalStore(cfg.Storage.CurrentDirectory, cfg.Storage.HistoryDirectory)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: store, reg: registry.Default()}, nil
}

// sensors returns the configured sensor list, or every registered sensor
// when the configuration leaves it empty.
func (e *env) sensors() []string {
	if len(e.cfg.Collector.Sensors) > 0 {
		return e.cfg.Collector.Sensors
	}
	return e.reg.IDs()
}

func (e *env) newCollector() (*collector.Collector, error) {
	client, err := source.NewClient(source.Options{
		BaseURL:     e.cfg.Collector.BaseURL,
		Service:     e.cfg.Collector.FiwareService,
		ServicePath: e.cfg.Collector.FiwareServicePath,
		Timeout:     e.cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, err
	}

	return collector.New(client, e.store, collector.Options{
		Sensors:      e.sensors(),
		RetentionCap: e.cfg.Storage.RetentionCap,
		Interval:     e.cfg.Interval(),
		SensorPause:  e.cfg.SensorPause(),
		SourceURL:    e.cfg.Collector.BaseURL,
		Logger:       e.logger,
		Out:          os.Stdout,
		Plain:        !term.IsTerminal(int(os.Stdout.Fd())),
	})
}
