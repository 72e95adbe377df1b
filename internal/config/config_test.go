package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MAILUP_TEST_DB_PASSWORD", "s3cret")

			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "s3cret", cfg.Database.Password)
				assert.Equal(t, "magento", cfg.Database.Database)
				assert.Equal(t, "mailup_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "mailup.export.customers", cfg.RabbitMQ.Export.RoutingKey)
				assert.Equal(t, "mailup-cron-service", cfg.App.Name)

				assert.Equal(t, 10*time.Minute, cfg.Cron.Interval)
				assert.Equal(t, LockBackendRedis, cfg.Cron.LockBackend)
				assert.Equal(t, 90*time.Minute, cfg.Cron.LockStaleAfter)
				assert.False(t, cfg.Cron.IsStrictListResolution())
				assert.True(t, cfg.Cron.TriggerConsumer)

				require.Len(t, cfg.Lists[1], 1)
				assert.Equal(t, "guid-10", cfg.Lists[1][0].GUID)
				assert.Equal(t, int64(5), cfg.Lists[1][0].Groups[0].ID)
				assert.Equal(t, "global-guid", cfg.Lists[0][0].GUID)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := t.TempDir() + "/minimal.yaml"
	writeFile(t, path, "database:\n  host: db\n  port: 5432\n  database: magento\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Cron.Interval)
	assert.Equal(t, LockBackendDatabase, cfg.Cron.LockBackend)
	assert.Equal(t, "mailupcronrun", cfg.Cron.LockKey)
	assert.Equal(t, time.Hour, cfg.Cron.LockStaleAfter)
	assert.Equal(t, 6*time.Hour, cfg.Cron.StuckJobThreshold)
	assert.True(t, cfg.Cron.IsStrictListResolution())
	assert.Equal(t, DispatcherAMQP, cfg.Cron.Dispatcher)
	assert.Equal(t, "mailup.export", cfg.RabbitMQ.Export.RoutingKey)
}

func validCronConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "magento",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "mailup_exchange"},
			Queue:    QueueConfig{Name: "mailup_cron_trigger"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestConfig_ValidateCronConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 70000 },
			errString: "invalid database port",
		},
		{
			name:      "unknown lock backend",
			mutate:    func(c *Config) { c.Cron.LockBackend = "zookeeper" },
			errString: "invalid cron lock_backend",
		},
		{
			name:      "redis backend without address",
			mutate:    func(c *Config) { c.Cron.LockBackend = LockBackendRedis },
			errString: "redis address is required",
		},
		{
			name: "redis backend with address",
			mutate: func(c *Config) {
				c.Cron.LockBackend = LockBackendRedis
				c.Redis.Address = "localhost:6379"
			},
		},
		{
			name:      "amqp dispatcher without rabbitmq",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name: "dry run dispatcher does not need rabbitmq",
			mutate: func(c *Config) {
				c.Cron.Dispatcher = DispatcherDryRun
				c.RabbitMQ = RabbitMQConfig{}
			},
		},
		{
			name: "trigger consumer needs rabbitmq",
			mutate: func(c *Config) {
				c.Cron.Dispatcher = DispatcherDryRun
				c.Cron.TriggerConsumer = true
				c.RabbitMQ.Queue.Name = ""
			},
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "unknown dispatcher",
			mutate:    func(c *Config) { c.Cron.Dispatcher = "smtp" },
			errString: "invalid cron dispatcher",
		},
		{
			name:      "negative stale threshold",
			mutate:    func(c *Config) { c.Cron.LockStaleAfter = -time.Second },
			errString: "lock_stale_after must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCronConfig()
			tt.mutate(cfg)

			err := cfg.ValidateCronConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		port      int
		errString string
	}{
		{name: "valid port", port: 8080},
		{name: "invalid server port - too low", port: 0, errString: "invalid server port"},
		{name: "invalid server port - too high", port: 70000, errString: "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCronConfig()
			cfg.Server.Port = tt.port

			err := cfg.ValidateAPIConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
