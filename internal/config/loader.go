package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")            // Current directory
		v.AddConfigPath("./configs")    // Project configs directory
		v.AddConfigPath("/etc/orchard") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("ORCHARD")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 7070)

	// Store defaults
	v.SetDefault("store.type", "etcd")
	v.SetDefault("store.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("store.dial_timeout", "5s")

	// Supervisor defaults
	v.SetDefault("supervisor.command", "/usr/share/searchd/bin/searchd")
	v.SetDefault("supervisor.start_timeout", "60s")
	v.SetDefault("supervisor.stop_grace_period", "30s")
	v.SetDefault("supervisor.probe_interval", "15s")
	v.SetDefault("supervisor.probe_timeout", "5s")
	v.SetDefault("supervisor.stats_dir", "./stats")

	// Tasks defaults
	v.SetDefault("tasks.max_workers", 4)
	v.SetDefault("tasks.retention", "30m")
	v.SetDefault("tasks.gc_interval", "1m")

	// Events defaults
	v.SetDefault("events.type", "nats")
	v.SetDefault("events.url", "nats://localhost:4222")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 7070,
		},
		Store: StoreConfig{
			Type:        "etcd",
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Command:         "/usr/share/searchd/bin/searchd",
			StartTimeout:    60 * time.Second,
			StopGracePeriod: 30 * time.Second,
			ProbeInterval:   15 * time.Second,
			ProbeTimeout:    5 * time.Second,
			StatsDir:        "./stats",
		},
		Tasks: TasksConfig{
			MaxWorkers: 4,
			Retention:  30 * time.Minute,
			GCInterval: time.Minute,
		},
		Events: EventsConfig{
			Type: "nats",
			URL:  "nats://localhost:4222",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
