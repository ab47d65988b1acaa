// Package config provides YAML-based configuration shared by the collector
// and the dashboard server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. ENERGY_SERVER_PORT.
const EnvPrefix = "ENERGY"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Presenter PresenterConfig `yaml:"presenter" mapstructure:"presenter"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings for the dashboard
type ServerConfig struct {
	Port                 int    `yaml:"port" mapstructure:"port"`
	BindAddress          string `yaml:"bind_address" mapstructure:"bind_address"`
	ReadTimeout          int    `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	EnableCompression    bool   `yaml:"enable_compression" mapstructure:"enable_compression"`
	EnableRequestLogging bool   `yaml:"enable_request_logging" mapstructure:"enable_request_logging"`
}

// StorageConfig contains the shared file layout
type StorageConfig struct {
	CurrentDirectory string `yaml:"current_directory" mapstructure:"current_directory"`
	HistoryDirectory string `yaml:"history_directory" mapstructure:"history_directory"`
	RetentionCap     int    `yaml:"retention_cap" mapstructure:"retention_cap"`
}

// CollectorConfig contains upstream polling settings
type CollectorConfig struct {
	BaseURL           string   `yaml:"base_url" mapstructure:"base_url"`
	FiwareService     string   `yaml:"fiware_service" mapstructure:"fiware_service"`
	FiwareServicePath string   `yaml:"fiware_service_path" mapstructure:"fiware_service_path"`
	IntervalSeconds   int      `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	RequestTimeout    int      `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	SensorPauseMillis int      `yaml:"sensor_pause_millis" mapstructure:"sensor_pause_millis"`
	Sensors           []string `yaml:"sensors" mapstructure:"sensors"`
}

// PresenterConfig contains dashboard data settings
type PresenterConfig struct {
	BinWidthSeconds       int `yaml:"bin_width_seconds" mapstructure:"bin_width_seconds"`
	TimeSeriesLimit       int `yaml:"time_series_limit" mapstructure:"time_series_limit"`
	ReloadIntervalSeconds int `yaml:"reload_interval_seconds" mapstructure:"reload_interval_seconds"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8050,
			BindAddress:          "127.0.0.1",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			EnableCompression:    true,
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			CurrentDirectory: "./datos",
			HistoryDirectory: "./historico",
			RetentionCap:     2880,
		},
		Collector: CollectorConfig{
			BaseURL:           "http://10.38.32.137:5555/data",
			FiwareService:     "openiot",
			FiwareServicePath: "/",
			IntervalSeconds:   30,
			RequestTimeout:    10,
			SensorPauseMillis: 500,
			Sensors:           []string{},
		},
		Presenter: PresenterConfig{
			BinWidthSeconds:       30,
			TimeSeriesLimit:       5,
			ReloadIntervalSeconds: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := DefaultConfig().Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// newViper registers every default so AutomaticEnv can override any key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.read_timeout_seconds", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout_seconds", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout_seconds", d.Server.IdleTimeout)
	v.SetDefault("server.enable_compression", d.Server.EnableCompression)
	v.SetDefault("server.enable_request_logging", d.Server.EnableRequestLogging)
	v.SetDefault("storage.current_directory", d.Storage.CurrentDirectory)
	v.SetDefault("storage.history_directory", d.Storage.HistoryDirectory)
	v.SetDefault("storage.retention_cap", d.Storage.RetentionCap)
	v.SetDefault("collector.base_url", d.Collector.BaseURL)
	v.SetDefault("collector.fiware_service", d.Collector.FiwareService)
	v.SetDefault("collector.fiware_service_path", d.Collector.FiwareServicePath)
	v.SetDefault("collector.interval_seconds", d.Collector.IntervalSeconds)
	v.SetDefault("collector.request_timeout_seconds", d.Collector.RequestTimeout)
	v.SetDefault("collector.sensor_pause_millis", d.Collector.SensorPauseMillis)
	v.SetDefault("collector.sensors", d.Collector.Sensors)
	v.SetDefault("presenter.bin_width_seconds", d.Presenter.BinWidthSeconds)
	v.SetDefault("presenter.time_series_limit", d.Presenter.TimeSeriesLimit)
	v.SetDefault("presenter.reload_interval_seconds", d.Presenter.ReloadIntervalSeconds)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	// Short names kept for container deployments.
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("collector.base_url", EnvPrefix+"_COLLECTOR_BASE_URL", "BASE_URL")

	return v
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Energy Monitor configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the collector or server cannot run with
func (c *AppConfig) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	case c.Collector.BaseURL == "":
		return fmt.Errorf("collector base_url is required")
	case c.Collector.IntervalSeconds <= 0:
		return fmt.Errorf("collector interval_seconds must be positive")
	case c.Collector.RequestTimeout <= 0:
		return fmt.Errorf("collector request_timeout_seconds must be positive")
	case c.Collector.SensorPauseMillis < 0:
		return fmt.Errorf("collector sensor_pause_millis must not be negative")
	case c.Storage.RetentionCap <= 0:
		return fmt.Errorf("storage retention_cap must be positive")
	case c.Presenter.BinWidthSeconds <= 0:
		return fmt.Errorf("presenter bin_width_seconds must be positive")
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.CurrentDirectory) {
		c.Storage.CurrentDirectory = filepath.Join(configDir, c.Storage.CurrentDirectory)
	}
	if !filepath.IsAbs(c.Storage.HistoryDirectory) {
		c.Storage.HistoryDirectory = filepath.Join(configDir, c.Storage.HistoryDirectory)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// Interval returns the pause between collection cycles
func (c *AppConfig) Interval() time.Duration {
	return time.Duration(c.Collector.IntervalSeconds) * time.Second
}

// RequestTimeout returns the upstream request bound
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Collector.RequestTimeout) * time.Second
}

// SensorPause returns the pause between two sensors of one cycle
func (c *AppConfig) SensorPause() time.Duration {
	return time.Duration(c.Collector.SensorPauseMillis) * time.Millisecond
}

// BinWidth returns the width of the averaged bar chart bins
func (c *AppConfig) BinWidth() time.Duration {
	return time.Duration(c.Presenter.BinWidthSeconds) * time.Second
}

// ReloadInterval returns how often the server re-reads history files; zero
// means only at startup and on demand.
func (c *AppConfig) ReloadInterval() time.Duration {
	return time.Duration(c.Presenter.ReloadIntervalSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.CurrentDirectory,
		c.Storage.HistoryDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
