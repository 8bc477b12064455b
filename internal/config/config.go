package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       DBConfig
	JWT      JWTConfig
	Server   ServerConfig
	Redis    RedisConfig
	Security SecurityConfig
	Mail     MailConfig
	Seed     SeedConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

// RedisConfig is optional. With an empty Addr consumed reset tokens are
// tracked in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	EncryptionSecret string
	ResetTokenTTL    time.Duration
	// EditSessionTimeout is how long an abandoned admin edit keeps a record
	// locked for other admins.
	EditSessionTimeout time.Duration
}

type MailConfig struct {
	From        string
	QueueSize   int
	SendTimeout time.Duration
}

type SeedConfig struct {
	Enabled       bool
	AdminUsername string
	AdminPassword string
	AdminMail     string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "nodeadmin"),
			Password: getEnv("DB_PASSWORD", "nodeadmin_secret"),
			Name:     getEnv("DB_NAME", "nodeadmin"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3001"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			EncryptionSecret:   getEnv("ENCRYPTION_SECRET", getEnv("JWT_SECRET", "change-me-in-production")),
			ResetTokenTTL:      getEnvAsDuration("RESET_TOKEN_TTL", 72*time.Hour),
			EditSessionTimeout: getEnvAsDuration("EDIT_SESSION_TIMEOUT", 30*time.Minute),
		},
		Mail: MailConfig{
			From:        getEnv("MAIL_FROM", "no-reply@nodeadmin.local"),
			QueueSize:   getEnvAsInt("MAIL_QUEUE_SIZE", 100),
			SendTimeout: getEnvAsDuration("MAIL_SEND_TIMEOUT", 30*time.Second),
		},
		Seed: SeedConfig{
			Enabled:       getEnvAsBool("SEED_ADMIN", true),
			AdminUsername: getEnv("SEED_ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
			AdminMail:     getEnv("SEED_ADMIN_MAIL", "admin@nodeadmin.local"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
