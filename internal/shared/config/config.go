package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	AI         AIConfig
	HIS        HISConfig
	Monitor    MonitorConfig
	Queue      QueueConfig
	Escalation EscalationConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type LogConfig struct {
	Level string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB, used as the
// append-only audit trail for notifications and emergencies.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// AIConfig holds configuration for the remote vitals analysis service.
// The service is optional; classification always has the rule engine
// to fall back on.
type AIConfig struct {
	URL     string
	Enabled bool
	Token   string
	Timeout time.Duration
	// RequestsPerSecond bounds outbound calls to the analysis service
	RequestsPerSecond int
}

// HISConfig holds configuration for the legacy hospital information
// system (SQL Server) that supplies patient profiles.
type HISConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// MonitorConfig holds configuration for the admin monitoring loop.
type MonitorConfig struct {
	PollInterval time.Duration
}

// QueueConfig holds configuration for the durable sync queue.
type QueueConfig struct {
	Dir string
}

// EscalationConfig holds configuration for the emergency escalation path.
// GatewayURL points at the telephony/SMS gateway; when empty, escalation
// steps run against log-only providers (development mode).
type EscalationConfig struct {
	EmergencyNumber    string
	GeolocationTimeout time.Duration
	GatewayURL         string
	GatewayToken       string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "pulsecare"),
			Password: getEnv("DB_PASSWORD", "pulsecare"),
			Database: getEnv("DB_NAME", "pulsecare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		AI: AIConfig{
			URL:               getEnv("AI_SERVICE_URL", "http://localhost:5000"),
			Enabled:           getEnvBool("AI_ENABLED", true),
			Token:             getEnv("AI_SERVICE_TOKEN", ""),
			Timeout:           getEnvDuration("AI_TIMEOUT", 2*time.Second),
			RequestsPerSecond: getEnvInt("AI_REQUESTS_PER_SECOND", 10),
		},
		HIS: HISConfig{
			Enabled:  getEnvBool("HIS_ENABLED", false),
			Host:     getEnv("HIS_HOST", "localhost"),
			Port:     getEnvInt("HIS_PORT", 1433),
			User:     getEnv("HIS_USER", "sa"),
			Password: getEnv("HIS_PASSWORD", ""),
			Database: getEnv("HIS_DATABASE", "hospital"),
			SSLMode:  getEnv("HIS_SSLMODE", "disable"),
		},
		Monitor: MonitorConfig{
			PollInterval: getEnvDuration("MONITOR_POLL_INTERVAL", 3*time.Second),
		},
		Queue: QueueConfig{
			Dir: getEnv("QUEUE_DIR", "./data/syncqueue"),
		},
		Escalation: EscalationConfig{
			EmergencyNumber:    getEnv("EMERGENCY_NUMBER", "911"),
			GeolocationTimeout: getEnvDuration("GEOLOCATION_TIMEOUT", 5*time.Second),
			GatewayURL:         getEnv("EMERGENCY_GATEWAY_URL", ""),
			GatewayToken:       getEnv("EMERGENCY_GATEWAY_TOKEN", ""),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
