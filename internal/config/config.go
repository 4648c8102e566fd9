package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
	"github.com/jiwoo/sms-sequencer/internal/provider"
	"github.com/jiwoo/sms-sequencer/internal/reconcile"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig        `mapstructure:"api"`
	Database DatabaseConfig   `mapstructure:"database"`
	Dispatch dispatch.Config  `mapstructure:"dispatch"`
	Provider provider.Config  `mapstructure:"provider"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Sweep    reconcile.Config `mapstructure:"sweep"`
	Logging  LoggingConfig    `mapstructure:"logging"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AuthToken protects the management endpoints. Webhooks and health
	// endpoints stay open.
	AuthToken string `mapstructure:"auth_token"`
}

// DatabaseConfig holds PostgreSQL connection configuration. An empty URL
// selects the in-memory repository (single-process deployments and tests).
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// QueueConfig holds delivery queue configuration.
type QueueConfig struct {
	// MaxRetries is the per-entry send retry budget. Zero selects the default.
	MaxRetries int `mapstructure:"max_retries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"` // stdout (default), file
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix SMS_SEQUENCER_ override file values.
// For example, SMS_SEQUENCER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("SMS_SEQUENCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 15*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	d := dispatch.DefaultConfig()
	v.SetDefault("dispatch.type", "redis")
	v.SetDefault("dispatch.redis_addr", d.RedisAddr)
	v.SetDefault("dispatch.worker_count", d.WorkerCount)
	v.SetDefault("dispatch.block_timeout", d.BlockTimeout)
	v.SetDefault("dispatch.process_timeout", d.ProcessTimeout)
	v.SetDefault("dispatch.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("dispatch.max_retries", d.MaxRetries)
	v.SetDefault("dispatch.group_name", d.GroupName)

	v.SetDefault("provider.type", "stdout")

	v.SetDefault("queue.max_retries", 3)

	v.SetDefault("sweep.interval", reconcile.DefaultInterval)
	v.SetDefault("sweep.stall_age", reconcile.DefaultStallAge)
	v.SetDefault("sweep.batch_limit", reconcile.DefaultBatchLimit)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
}
