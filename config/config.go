package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	DatabaseDSN    string
	Redis          RedisConfig
	CachePath      string
	SyncInterval   time.Duration
	// SignalingBacklog is how many recent signaling rows a joiner replays to
	// discover peers that announced before it arrived.
	SignalingBacklog int
	STUNServer       string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		DatabaseDSN:    getEnv("DB_DSN", "postgres://localhost:5432/learnchain?sslmode=disable"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		CachePath:        getEnv("CACHE_PATH", "coursecache.db"),
		SyncInterval:     getDurationEnv("SYNC_INTERVAL", 5*time.Minute),
		SignalingBacklog: getIntEnv("SIGNALING_BACKLOG", 50),
		STUNServer:       getEnv("STUN_SERVER", "stun:stun.l.google.com:19302"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
