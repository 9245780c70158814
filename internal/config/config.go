package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	SMTP      SMTPConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Outbox    OutboxConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// SchedulerConfig holds the timing rules of the scheduling core.
type SchedulerConfig struct {
	PromoteInterval   time.Duration `mapstructure:"promote_interval"`
	ExpireInterval    time.Duration `mapstructure:"expire_interval"`
	ReminderLead      time.Duration `mapstructure:"reminder_lead"`
	BookingHorizonDays int          `mapstructure:"booking_horizon_days"`
	ActiveWindowDays   int          `mapstructure:"active_window_days"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("scheduler.promote_interval", time.Minute)
	viper.SetDefault("scheduler.expire_interval", time.Minute)
	viper.SetDefault("scheduler.reminder_lead", 5*time.Minute)
	viper.SetDefault("scheduler.booking_horizon_days", 15)
	viper.SetDefault("scheduler.active_window_days", 15)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval", 5*time.Second)
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay", 5*time.Second)
	viper.SetDefault("outbox.retention", 24*time.Hour)
	viper.SetDefault("outbox.cleanup_interval", time.Hour)
}

// WorkerEnv carries deployment overrides for the background worker, read
// from the environment so the worker can run without a config file.
type WorkerEnv struct {
	HealthPort   int    `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
	MetricsToken string `envconfig:"WORKER_METRICS_TOKEN"`
}

func LoadWorkerEnv() (*WorkerEnv, error) {
	var env WorkerEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to process worker env: %w", err)
	}
	return &env, nil
}
