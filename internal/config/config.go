package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string
	DBMaxConns  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LatePenalty      int
	LateScanInterval time.Duration
	AutoOfflineAfter time.Duration
	AutoOfflineEvery time.Duration

	RateLimitPerMinute        int
	RateLimitBurst            int
	DisplayRateLimitPerMinute int
	DisplayRateLimitBurst     int

	StaffPasswordHash string
	JWTSecret         string
	JWTTTL            time.Duration

	PortalDomain string
}

// Load reads the environment, after applying a .env file when one exists.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                      port,
		Env:                       readString("APP_ENV", "production"),
		LogLevel:                  readString("LOG_LEVEL", "info"),
		DatabaseURL:               os.Getenv("DB_DSN"),
		DBMaxConns:                readInt("DB_MAX_CONNS", 10),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   readInt("REDIS_DB", 0),
		LatePenalty:               readInt("LATE_PENALTY_POSITIONS", 2),
		LateScanInterval:          readDurationSeconds("LATE_SCAN_INTERVAL_SECONDS", 60),
		AutoOfflineAfter:          readDurationSeconds("AUTO_OFFLINE_AFTER_SECONDS", 7200),
		AutoOfflineEvery:          readDurationSeconds("AUTO_OFFLINE_SCAN_INTERVAL_SECONDS", 300),
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		DisplayRateLimitPerMinute: readInt("DISPLAY_RATE_LIMIT_PER_MIN", 240),
		DisplayRateLimitBurst:     readInt("DISPLAY_RATE_LIMIT_BURST", 60),
		StaffPasswordHash:         os.Getenv("STAFF_PASSWORD_HASH"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		JWTTTL:                    readDurationSeconds("JWT_TTL_SECONDS", 12*3600),
		PortalDomain:              readString("PORTAL_DOMAIN", "shantiq.in"),
	}
}

func (c Config) Development() bool {
	return c.Env == "development"
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
