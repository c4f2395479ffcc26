package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker" validate:"required"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the read-store connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// BrokerConfig contains the RabbitMQ connection, queue and publish settings.
type BrokerConfig struct {
	URL                 string        `mapstructure:"url" validate:"required,url"`
	QueueName           string        `mapstructure:"queue_name" validate:"required"`
	DeadLetterExchange  string        `mapstructure:"dead_letter_exchange" validate:"required_with=DeadLetterQueue"`
	DeadLetterQueue     string        `mapstructure:"dead_letter_queue"`
	ProvisionAttempts   int           `mapstructure:"provision_attempts" validate:"gt=0"`
	ProvisionRetryDelay time.Duration `mapstructure:"provision_retry_delay" validate:"gte=0"`
	PublisherConfirms   bool          `mapstructure:"publisher_confirms"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	Heartbeat           time.Duration `mapstructure:"heartbeat" validate:"gte=0"`
	Source              string        `mapstructure:"source" validate:"required"`
}

// DispatchConfig contains the optional publish circuit breaker settings.
type DispatchConfig struct {
	BreakerEnabled          bool          `mapstructure:"breaker_enabled"`
	BreakerFailureThreshold uint32        `mapstructure:"breaker_failure_threshold" validate:"gt=0"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
}

// TracingConfig contains the OpenTelemetry settings. An empty Endpoint keeps
// spans in-process.
type TracingConfig struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
}
