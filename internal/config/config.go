package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Lock backends
const (
	LockBackendDatabase = "database"
	LockBackendRedis    = "redis"
	LockBackendFile     = "file"
)

// Dispatchers
const (
	DispatcherAMQP   = "amqp"
	DispatcherDryRun = "dry_run"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Database DatabaseConfig          `yaml:"database"`
	Redis    RedisConfig             `yaml:"redis"`
	RabbitMQ RabbitMQConfig          `yaml:"rabbitmq"`
	Logging  LoggingConfig           `yaml:"logging"`
	App      AppConfig               `yaml:"app"`
	Cron     CronConfig              `yaml:"cron"`
	Stores   StoresConfig            `yaml:"stores"`
	Lists    map[int64][]domain.List `yaml:"lists"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Export     ExportConfig     `yaml:"export"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ExportConfig names the queue and routing key export batches are published to
type ExportConfig struct {
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	FilePath         string `yaml:"file_path"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// CronConfig holds cron runner configuration
type CronConfig struct {
	// Interval between runs in daemon mode
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`

	LockBackend    string        `yaml:"lock_backend"`
	LockKey        string        `yaml:"lock_key"`
	LockDir        string        `yaml:"lock_dir"`
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`

	// StuckJobThreshold is how long a job may stay started before it is reported
	StuckJobThreshold time.Duration `yaml:"stuck_job_threshold"`

	// StrictListResolution refuses to dispatch jobs whose list cannot be resolved
	StrictListResolution *bool `yaml:"strict_list_resolution"`

	Dispatcher       string        `yaml:"dispatcher"`
	DryRunResultCode int           `yaml:"dry_run_result_code"`
	ListCacheTTL     time.Duration `yaml:"list_cache_ttl"`
	TriggerConsumer  bool          `yaml:"trigger_consumer"`
}

// Load reads and parses the configuration file.
// ${VAR} references are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Cron.Interval == 0 {
		c.Cron.Interval = 5 * time.Minute
	}
	if c.Cron.LockBackend == "" {
		c.Cron.LockBackend = LockBackendDatabase
	}
	if c.Cron.LockKey == "" {
		c.Cron.LockKey = domain.CronLockID
	}
	if c.Cron.LockDir == "" {
		c.Cron.LockDir = "var/locks"
	}
	if c.Cron.LockStaleAfter == 0 {
		c.Cron.LockStaleAfter = time.Hour
	}
	if c.Cron.StuckJobThreshold == 0 {
		c.Cron.StuckJobThreshold = 6 * time.Hour
	}
	if c.Cron.StrictListResolution == nil {
		strict := true
		c.Cron.StrictListResolution = &strict
	}
	if c.Cron.Dispatcher == "" {
		c.Cron.Dispatcher = DispatcherAMQP
	}
	if c.RabbitMQ.Export.RoutingKey == "" {
		c.RabbitMQ.Export.RoutingKey = "mailup.export"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
}

// IsStrictListResolution reports whether unresolved lists block dispatch
func (c *CronConfig) IsStrictListResolution() bool {
	return c.StrictListResolution == nil || *c.StrictListResolution
}

// ValidateAPIConfig checks the settings the status API needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateDatabase()
}

// ValidateCronConfig checks the settings the cron service needs
func (c *Config) ValidateCronConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Server.Port != 0 && (c.Server.Port < MinPort || c.Server.Port > MaxPort) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Cron.Interval <= 0 {
		return fmt.Errorf("cron interval must be greater than 0")
	}

	if c.Cron.LockStaleAfter <= 0 {
		return fmt.Errorf("cron lock_stale_after must be greater than 0")
	}

	switch c.Cron.LockBackend {
	case LockBackendDatabase:
	case LockBackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis lock backend")
		}
	case LockBackendFile:
		if c.Cron.LockDir == "" {
			return fmt.Errorf("cron lock_dir is required for the file lock backend")
		}
	default:
		return fmt.Errorf("invalid cron lock_backend: %q", c.Cron.LockBackend)
	}

	switch c.Cron.Dispatcher {
	case DispatcherDryRun:
	case DispatcherAMQP:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid cron dispatcher: %q", c.Cron.Dispatcher)
	}

	if c.Cron.TriggerConsumer {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
