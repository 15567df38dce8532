package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	UserDeleteRetain  = "retain"
	UserDeleteCascade = "cascade"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	LogLevel       string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryURL          string
	CloudinaryCloudName    string
	CloudinaryUploadFolder string

	JWTSecret string

	// AdminUsername and AdminPassword seed an administrator in development.
	AdminUsername string
	AdminPassword string

	// UserDeletePolicy decides what happens to authored content when an
	// admin deletes a user: "retain" or "cascade".
	UserDeletePolicy string

	RateLimitGlobal     time.Duration
	RateLimitTopic      time.Duration
	RateLimitDiscussion time.Duration
	RateLimitPost       time.Duration
	RateLimitComment    time.Duration

	DBMaxOpenConns int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASS"),
		DBName:     getEnv("DB_NAME", "biogy"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryURL:          os.Getenv("CLOUDINARY_URL"),
		CloudinaryCloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "biogy"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "admin12345"),
		UserDeletePolicy: getEnv("USER_DELETE_POLICY", UserDeleteRetain),
	}

	if cfg.UserDeletePolicy != UserDeleteRetain && cfg.UserDeletePolicy != UserDeleteCascade {
		return nil, fmt.Errorf("invalid USER_DELETE_POLICY %q: want %q or %q", cfg.UserDeletePolicy, UserDeleteRetain, UserDeleteCascade)
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "change-me"
	}

	var err error
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"RATE_LIMIT_GLOBAL", "5s", &cfg.RateLimitGlobal},
		{"RATE_LIMIT_TOPIC", "1m", &cfg.RateLimitTopic},
		{"RATE_LIMIT_DISCUSSION", "10s", &cfg.RateLimitDiscussion},
		{"RATE_LIMIT_POST", "30s", &cfg.RateLimitPost},
		{"RATE_LIMIT_COMMENT", "5s", &cfg.RateLimitComment},
	}
	for _, d := range durations {
		*d.dst, err = time.ParseDuration(getEnv(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	cfg.DBMaxOpenConns, err = strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
