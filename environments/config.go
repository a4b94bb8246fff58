package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Dispatch DispatchConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig points at the WhatsApp HTTP gateway that actually delivers
// messages. The service never talks to WhatsApp directly.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DispatchConfig carries the fallback delay bounds and template pool used
// when a company has no stored dispatch settings (or the fetch fails).
type DispatchConfig struct {
	MinDelaySeconds    int
	MaxDelaySeconds    int
	GroupBaseSeconds   int
	GroupJitterSeconds int
	DefaultTemplate    string
	SnapshotTTL        time.Duration
}

type AuthConfig struct {
	DispatchesAPIKey string
	SettingsAPIKey   string
}

func Load() *Config {
	// Local development convenience; absence of a .env file is not an error.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "buffet"),
			Password: GetEnv("DB_PASSWORD", "buffet123"),
			DBName:   GetEnv("DB_NAME", "buffet_dispatch"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL: GetEnv("WA_GATEWAY_URL", "http://localhost:8081"),
			APIKey:  GetEnv("WA_GATEWAY_API_KEY", ""),
			Timeout: time.Duration(GetEnvAsInt("WA_GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Dispatch: DispatchConfig{
			MinDelaySeconds:    GetEnvAsInt("DISPATCH_MIN_DELAY_SECONDS", 5),
			MaxDelaySeconds:    GetEnvAsInt("DISPATCH_MAX_DELAY_SECONDS", 15),
			GroupBaseSeconds:   GetEnvAsInt("DISPATCH_GROUP_BASE_SECONDS", 10),
			GroupJitterSeconds: GetEnvAsInt("DISPATCH_GROUP_JITTER_SECONDS", 4),
			DefaultTemplate: GetEnv("DISPATCH_DEFAULT_TEMPLATE",
				"Olá {name}! Aqui é do {company}. Temos novidades para sua festa: {link}"),
			SnapshotTTL: GetEnvAsDuration("DISPATCH_SNAPSHOT_TTL", time.Hour),
		},
		Auth: AuthConfig{
			DispatchesAPIKey: GetEnv("DISPATCHES_API_KEY", ""),
			SettingsAPIKey:   GetEnv("SETTINGS_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
