package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	JWT        JWTConfig        `mapstructure:"jwt" yaml:"jwt"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Realtime   RealtimeConfig   `mapstructure:"realtime" yaml:"realtime"`
	Email      EmailConfig      `mapstructure:"email" yaml:"email"`
	SMS        SMSConfig        `mapstructure:"sms" yaml:"sms"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	ExpiresIn  time.Duration `mapstructure:"expires_in" yaml:"expires_in"`
	CookieName string        `mapstructure:"cookie_name" yaml:"cookie_name"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	Output     string `mapstructure:"output" yaml:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type MonitoringConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string        `mapstructure:"metrics_path" yaml:"metrics_path"`
	Tracing     TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"` // OTLP gRPC endpoint, e.g. http://otel-collector:4317
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"` // 0.0~1.0
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors" yaml:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
}

// RateLimitingConfig per client IP sliding window for the HTTP API.
type RateLimitingConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Requests     int           `mapstructure:"requests" yaml:"requests"`
	Window       time.Duration `mapstructure:"window" yaml:"window"`
	WhitelistIPs []string      `mapstructure:"whitelist_ips" yaml:"whitelist_ips"`
}

type AutomationConfig struct {
	Workers   int                  `mapstructure:"workers" yaml:"workers"`
	QueueSize int                  `mapstructure:"queue_size" yaml:"queue_size"`
	Breaker   CircuitBreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

type CircuitBreakerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures     int           `mapstructure:"max_failures" yaml:"max_failures"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	HalfOpenMaxReqs int           `mapstructure:"half_open_max_requests" yaml:"half_open_max_requests"`
}

type RealtimeConfig struct {
	MaxConnectionsPerWorkspace int           `mapstructure:"max_connections_per_workspace" yaml:"max_connections_per_workspace"`
	MessagesPerSecond          int           `mapstructure:"messages_per_second" yaml:"messages_per_second"`
	MaxMessageLength           int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	WriteWait                  time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait                   time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	ReadLimit                  int64         `mapstructure:"read_limit" yaml:"read_limit"`
}

type EmailConfig struct {
	Provider string     `mapstructure:"provider" yaml:"provider"` // mock, smtp
	SMTP     SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	User     string        `mapstructure:"user" yaml:"user"`
	Password string        `mapstructure:"password" yaml:"password"`
	From     string        `mapstructure:"from" yaml:"from"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SMSConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider"` // mock, twilio
	Twilio   TwilioConfig `mapstructure:"twilio" yaml:"twilio"`
}

type TwilioConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	AccountSID string        `mapstructure:"account_sid" yaml:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token" yaml:"auth_token"`
	From       string        `mapstructure:"from" yaml:"from"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load overlays whatever viper has read onto the defaults.
func Load() *Config {
	cfg := GetDefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// GetDefaultConfig returns the built-in defaults.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "coreops",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		JWT: JWTConfig{
			Secret:     "default-secret-key",
			ExpiresIn:  24 * time.Hour,
			CookieName: "access_token",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/coreops.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "coreops",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
				AllowedHeaders: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:  true,
				Requests: 60,
				Window:   time.Minute,
			},
		},
		Automation: AutomationConfig{
			Workers:   4,
			QueueSize: 256,
			Breaker: CircuitBreakerConfig{
				Enabled:         true,
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 1,
			},
		},
		Realtime: RealtimeConfig{
			MaxConnectionsPerWorkspace: 50,
			MessagesPerSecond:          5,
			MaxMessageLength:           5000,
			WriteWait:                  10 * time.Second,
			PongWait:                   60 * time.Second,
			ReadLimit:                  4096,
		},
		Email: EmailConfig{
			Provider: "mock",
			SMTP: SMTPConfig{
				Port:    465,
				Timeout: 10 * time.Second,
			},
		},
		SMS: SMSConfig{
			Provider: "mock",
			Twilio: TwilioConfig{
				BaseURL: "https://api.twilio.com",
				Timeout: 10 * time.Second,
			},
		},
	}
}
