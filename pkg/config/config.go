package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	JWTSecret     string
	RedisAddr     string
	RateLimitRPM  int
	RateBurst     int
	OTLPEndpoint  string
	RosterPath    string
	EventLogLines bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to an embedded local sqlite file
		dbURL = "file:custodia.db?_pragma=journal_mode(WAL)"
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RateLimitRPM:  intEnv("RATE_LIMIT_RPM", 600),
		RateBurst:     intEnv("RATE_LIMIT_BURST", 60),
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
		RosterPath:    os.Getenv("ROSTER_PATH"),
		EventLogLines: os.Getenv("EVENT_LOG_LINES") == "true",
	}
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
