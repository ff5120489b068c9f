package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration. It is built once at process
// start and passed down explicitly; nothing else reads the environment.
type Config struct {
	// HTTP server
	HTTPPort int
	DBPath   string

	// Metadata gateway
	MetadataAPIURL   string
	MetadataAPIToken string

	// Web Push / VAPID
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	// Scheduled scan
	ScanSharedSecret string
	ScanTime         string // Format: "HH:MM"

	// Sessions
	JWTSecret string
	JWTExpiry time.Duration

	// Optional Telegram admin report
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from the environment, with .env support for
// local development. Missing required values are reported together.
func Load() (*Config, error) {
	// No .env file is fine in production; system env vars still apply.
	_ = godotenv.Load()

	chatID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)

	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DBPath:           getEnv("DB_PATH", "streamwatch.db"),
		MetadataAPIURL:   getEnv("TMDB_API_URL", "https://api.themoviedb.org/3"),
		MetadataAPIToken: getEnv("TMDB_TOKEN", ""),
		VAPIDPublicKey:   getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:  getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:     getEnv("VAPID_SUBJECT", "mailto:admin@streamwatch.app"),
		ScanSharedSecret: getEnv("CRON_SECRET", ""),
		ScanTime:         getEnv("SCAN_TIME", "00:00"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTExpiry:        getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   chatID,
	}

	var missing []string
	if cfg.MetadataAPIToken == "" {
		missing = append(missing, "TMDB_TOKEN")
	}
	if cfg.VAPIDPublicKey == "" {
		missing = append(missing, "VAPID_PUBLIC_KEY")
	}
	if cfg.VAPIDPrivateKey == "" {
		missing = append(missing, "VAPID_PRIVATE_KEY")
	}
	if cfg.ScanSharedSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
