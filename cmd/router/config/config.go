package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file.
const (
	EnvSnapshot = "ROUTER_SNAPSHOT"
	EnvWorkers  = "ROUTER_WORKERS"
	EnvLogLevel = "ROUTER_LOG_LEVEL"
)

const (
	DefaultWorkers             = 4
	DefaultCacheSize           = 1024
	DefaultCompactionThreshold = 1000
	DefaultMetricsListen       = ":9090"
	DefaultLogLevel            = "info"
)

type OptimizerConfig struct {
	Workers   int `yaml:"workers"`
	CacheSize int `yaml:"cache_size"`
}

type GraphConfig struct {
	CompactionThreshold int `yaml:"compaction_threshold"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RouterConfig is the configuration of the router CLI.
type RouterConfig struct {
	// Snapshot is the path of the YAML market fixture to route over.
	Snapshot  string          `yaml:"snapshot"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Graph     GraphConfig     `yaml:"graph"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a configuration with every optional field filled in.
func Default() *RouterConfig {
	return &RouterConfig{
		Optimizer: OptimizerConfig{
			Workers:   DefaultWorkers,
			CacheSize: DefaultCacheSize,
		},
		Graph: GraphConfig{
			CompactionThreshold: DefaultCompactionThreshold,
		},
		Metrics: MetricsConfig{
			Listen: DefaultMetricsListen,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// LoadConfig reads the YAML file at path on top of Default, loads an
// optional .env from the working directory and applies the ROUTER_*
// overrides. An empty path skips the file.
func LoadConfig(path string) (*RouterConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RouterConfig) applyEnv() error {
	if v := os.Getenv(EnvSnapshot); v != "" {
		c.Snapshot = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvWorkers, err)
		}
		c.Optimizer.Workers = workers
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *RouterConfig) validate() error {
	if c.Snapshot == "" {
		return errors.New("config: snapshot cannot be empty")
	}
	if c.Optimizer.Workers <= 0 {
		return errors.New("config: optimizer.workers must be positive")
	}
	if c.Optimizer.CacheSize < 0 {
		return errors.New("config: optimizer.cache_size cannot be negative")
	}
	if c.Graph.CompactionThreshold < 0 {
		return errors.New("config: graph.compaction_threshold cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return errors.New("config: metrics.listen cannot be empty when metrics are enabled")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level into a slog level.
func (c *RouterConfig) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
