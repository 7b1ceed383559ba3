package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erkineren/homework-monitor/internal/apperror"
	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultFromDate = 1704056618

	DefaultTelegramEndpoint = "https://api.telegram.org/bot%s/%s"
)

type Config struct {
	PracticumToken   string
	TelegramToken    string
	TelegramChatID   string
	TelegramEndpoint string
	Endpoint         string
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	FromDate         int64
	AdvanceTimestamp bool
	DatabaseURL      string
	JournalRetention time.Duration
	LogLevel         string
	LogFormat        string
}

// Load reads the configuration from the environment, after applying envFile
// if it exists. Required credentials are not checked here, see CheckCredentials.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: error loading %s: %v", apperror.ErrConfiguration, envFile, err)
		}
	}

	pollInterval, err := strconv.Atoi(getEnvWithDefault("POLL_INTERVAL", "600"))
	if err != nil || pollInterval <= 0 {
		return nil, fmt.Errorf("%w: invalid POLL_INTERVAL %q", apperror.ErrConfiguration, os.Getenv("POLL_INTERVAL"))
	}

	requestTimeout, err := strconv.Atoi(getEnvWithDefault("REQUEST_TIMEOUT", "0"))
	if err != nil || requestTimeout < 0 {
		return nil, fmt.Errorf("%w: invalid REQUEST_TIMEOUT %q", apperror.ErrConfiguration, os.Getenv("REQUEST_TIMEOUT"))
	}

	fromDate, err := strconv.ParseInt(getEnvWithDefault("FROM_DATE", strconv.Itoa(DefaultFromDate)), 10, 64)
	if err != nil || fromDate < 0 {
		return nil, fmt.Errorf("%w: invalid FROM_DATE %q", apperror.ErrConfiguration, os.Getenv("FROM_DATE"))
	}

	advance, err := strconv.ParseBool(getEnvWithDefault("ADVANCE_TIMESTAMP", "false"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ADVANCE_TIMESTAMP %q", apperror.ErrConfiguration, os.Getenv("ADVANCE_TIMESTAMP"))
	}

	retention, err := strconv.Atoi(getEnvWithDefault("JOURNAL_RETENTION", "720"))
	if err != nil || retention <= 0 {
		return nil, fmt.Errorf("%w: invalid JOURNAL_RETENTION %q", apperror.ErrConfiguration, os.Getenv("JOURNAL_RETENTION"))
	}

	return &Config{
		PracticumToken:   os.Getenv("PRACTICUM_TOKEN"),
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		TelegramEndpoint: getEnvWithDefault("TELEGRAM_API_ENDPOINT", DefaultTelegramEndpoint),
		Endpoint:         getEnvWithDefault("PRACTICUM_ENDPOINT", DefaultEndpoint),
		PollInterval:     time.Duration(pollInterval) * time.Second,
		RequestTimeout:   time.Duration(requestTimeout) * time.Second,
		FromDate:         fromDate,
		AdvanceTimestamp: advance,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JournalRetention: time.Duration(retention) * time.Hour,
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "debug"),
		LogFormat:        getEnvWithDefault("LOG_FORMAT", "console"),
	}, nil
}

// CheckCredentials fails when any token needed to talk to the review API or
// Telegram is absent. The process must not start polling in that case.
func (c *Config) CheckCredentials() error {
	var missing []string
	if c.PracticumToken == "" {
		missing = append(missing, "PRACTICUM_TOKEN")
	}
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return apperror.MissingVariables(missing...)
	}

	if !strings.HasPrefix(c.TelegramChatID, "@") {
		if _, err := strconv.ParseInt(c.TelegramChatID, 10, 64); err != nil {
			return fmt.Errorf("%w: TELEGRAM_CHAT_ID must be a numeric id or @channel, got %q",
				apperror.ErrConfiguration, c.TelegramChatID)
		}
	}

	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
