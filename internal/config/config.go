package config

import (
	"fmt"
	"time"
)

// Config represents the complete orchestrator configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents admin API server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // Admin API port
}

// StoreConfig represents the node/cluster registry backing store
type StoreConfig struct {
	Type        string        `mapstructure:"type"` // etcd (default), memory
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// SupervisorConfig represents process supervision configuration
type SupervisorConfig struct {
	// Command is the executable used to launch a managed node process
	Command string `mapstructure:"command"`
	// ExtraArgs are appended to every node launch
	ExtraArgs []string `mapstructure:"extra_args"`
	// StartTimeout bounds the wait for a spawned node to answer its health probe
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	// StopGracePeriod bounds the wait after SIGTERM before escalating to SIGKILL
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period"`
	// ProbeInterval is how often running nodes are probed for statistics
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	// ProbeTimeout bounds a single health/stats probe request
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// StatsDir is where last-known node statistics snapshots are persisted
	StatsDir string `mapstructure:"stats_dir"`
}

// TasksConfig represents the async task engine configuration
type TasksConfig struct {
	MaxWorkers int           `mapstructure:"max_workers"` // Concurrent task cap
	Retention  time.Duration `mapstructure:"retention"`   // How long completed tasks stay pollable
	GCInterval time.Duration `mapstructure:"gc_interval"` // Completed-task sweep interval
}

// EventsConfig represents the lifecycle event bus configuration
type EventsConfig struct {
	Type     string `mapstructure:"type"` // nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`
	RedisStream string `mapstructure:"redis_stream"`

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Supervisor.Validate(); err != nil {
		return fmt.Errorf("supervisor config: %w", err)
	}

	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("tasks config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case "etcd":
		if len(c.Endpoints) == 0 {
			return fmt.Errorf("store.endpoints is required for etcd store")
		}
		if c.DialTimeout <= 0 {
			return fmt.Errorf("store.dial_timeout must be positive")
		}
	case "memory":
		// No backing service required
	default:
		return fmt.Errorf("store.type must be 'etcd' or 'memory'")
	}

	return nil
}

// Validate validates supervisor configuration
func (c *SupervisorConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("supervisor.command is required")
	}

	if c.StartTimeout <= 0 {
		return fmt.Errorf("supervisor.start_timeout must be positive")
	}

	if c.StopGracePeriod <= 0 {
		return fmt.Errorf("supervisor.stop_grace_period must be positive")
	}

	if c.ProbeInterval <= 0 {
		return fmt.Errorf("supervisor.probe_interval must be positive")
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("supervisor.probe_timeout must be positive")
	}

	if c.ProbeTimeout >= c.StartTimeout {
		return fmt.Errorf("supervisor.probe_timeout must be below start_timeout")
	}

	return nil
}

// Validate validates tasks configuration
func (c *TasksConfig) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("tasks.max_workers must be at least 1")
	}

	if c.Retention <= 0 {
		return fmt.Errorf("tasks.retention must be positive")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
