package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey       string
	TelegramToken      string
	TelegramChatID     int64
	TwitterBearerToken string

	HistoryPath          string
	Retention            time.Duration
	RunInterval          time.Duration
	BatchSize            int
	FetchLimit           int
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	MaxConsecutiveErrors int

	// Quiet window by local hour of day, end exclusive. Both -1 disables it.
	QuietHoursStart int
	QuietHoursEnd   int
}

func Load() *Config {
	// Local development convenience; a missing .env file is normal.
	_ = godotenv.Load()

	return &Config{
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),

		HistoryPath:          getEnv("HISTORY_FILE", defaultHistoryPath()),
		Retention:            getEnvAsDuration("HISTORY_RETENTION", 7*24*time.Hour),
		RunInterval:          getEnvAsDuration("RUN_INTERVAL", time.Hour),
		BatchSize:            getEnvAsInt("BATCH_SIZE", 5),
		FetchLimit:           getEnvAsInt("FETCH_LIMIT", 10),
		RetryAttempts:        getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:       getEnvAsDuration("RETRY_BASE_DELAY", 5*time.Second),
		MaxConsecutiveErrors: getEnvAsInt("MAX_CONSECUTIVE_ERRORS", 10),

		QuietHoursStart: getEnvAsInt("QUIET_HOURS_START", -1),
		QuietHoursEnd:   getEnvAsInt("QUIET_HOURS_END", -1),
	}
}

func defaultHistoryPath() string {
	path, err := xdg.DataFile(filepath.Join("cryptoscout", "sent_news_history.json"))
	if err != nil {
		return "sent_news_history.json"
	}
	return path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
