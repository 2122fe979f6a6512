package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MeetingProviderJitsi  = "jitsi"
	MeetingProviderGoogle = "google"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPAddr    string
	CORSOrigins []string

	DBDSN         string
	MigrationsDir string

	JWTSecret string

	TelegramToken   string // пустой токен - уведомления только в лог
	NotifyQueueSize int
	NotifyWorkers   int

	RedisAddr     string // пустой адрес - Idempotency-Key не поддерживается
	RedisPassword string
	RedisDB       int

	MeetingProvider       string
	MeetingBaseURL        string
	GoogleCredentialsFile string
	GoogleCalendarID      string

	Location           *time.Location
	SweepInterval      time.Duration
	GenerateWeeksAhead int

	// EnvFileLoaded - найден ли .env, для лога при старте
	EnvFileLoaded bool
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	loaded := godotenv.Load(".env") == nil

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromEnv собирает конфиг из окружения с дефолтами
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:           getEnv("ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:           splitList(os.Getenv("CORS_ORIGINS")),
		DBDSN:                 os.Getenv("DB_DSN"),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		TelegramToken:         os.Getenv("TELEGRAM_TOKEN"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		MeetingProvider:       strings.ToLower(getEnv("MEETING_PROVIDER", MeetingProviderJitsi)),
		MeetingBaseURL:        getEnv("MEETING_BASE_URL", "https://meet.jit.si"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
	}

	var err error
	if cfg.NotifyQueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.NotifyWorkers, err = getInt("NOTIFY_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.GenerateWeeksAhead, err = getInt("GENERATE_WEEKS_AHEAD", 4); err != nil {
		return nil, err
	}

	sweep := getEnv("SWEEP_INTERVAL", "1m")
	if cfg.SweepInterval, err = time.ParseDuration(sweep); err != nil {
		return nil, fmt.Errorf("parse SWEEP_INTERVAL %q: %w", sweep, err)
	}

	tz := getEnv("TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", tz, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required but not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be positive")
	}
	if c.GenerateWeeksAhead <= 0 {
		return fmt.Errorf("GENERATE_WEEKS_AHEAD must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	switch c.MeetingProvider {
	case MeetingProviderJitsi:
	case MeetingProviderGoogle:
		if c.GoogleCredentialsFile == "" {
			return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required for google meeting provider")
		}
	default:
		return fmt.Errorf("unknown MEETING_PROVIDER %q", c.MeetingProvider)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
