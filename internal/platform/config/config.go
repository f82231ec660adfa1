package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Port          string
	IsProduction  bool
	LogLevel      slog.Level
	StoreDriver   string
	DatabaseURL   string
	EnableDBCheck bool
	SQLitePath    string
	MigrationsURL string

	JWTSecret   string
	JWTIssuer   string
	AdminAPIKey string

	RateLimit          string
	CORSAllowedOrigins []string

	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

// SchedulerConfig controls the periodic runner.
type SchedulerConfig struct {
	Enabled         bool
	Cron            string
	Location        *time.Location
	MaxCatchUp      int
	ManualGraceDays int
	TickTimeout     time.Duration
}

// NotifyConfig controls where notifications go.
type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID int64
	RatePerSec     int
	DedupWindow    time.Duration
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("ENABLE_DB_CHECK", false)
	v.SetDefault("SQLITE_PATH", "data/schedules.db")
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "money-management-app")
	v.SetDefault("ADMIN_API_KEY", "")
	v.SetDefault("RATE_LIMIT", "100-M")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_CRON", "5 0 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULER_MAX_CATCHUP", 31)
	v.SetDefault("SCHEDULER_MANUAL_GRACE_DAYS", 7)
	v.SetDefault("TICK_TIMEOUT", "2m")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", 0)
	v.SetDefault("NOTIFY_RATE_PER_SEC", 1)
	v.SetDefault("NOTIFY_DEDUP_WINDOW", "1h")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:          v.GetString("PORT"),
		IsProduction:  v.GetBool("IS_PRODUCTION"),
		StoreDriver:   strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DatabaseURL:   v.GetString("PGSQL_URL"),
		EnableDBCheck: v.GetBool("ENABLE_DB_CHECK"),
		SQLitePath:    v.GetString("SQLITE_PATH"),
		MigrationsURL: v.GetString("MIGRATIONS_PATH"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTIssuer:     v.GetString("JWT_ISSUER"),
		AdminAPIKey:   v.GetString("ADMIN_API_KEY"),
		RateLimit:     v.GetString("RATE_LIMIT"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080" // Default port
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("PGSQL_URL is required when STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreMemory:
		log.Println("Warning: STORE_DRIVER=memory keeps schedules in process memory only.")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction {
			return nil, errors.New("JWT_SECRET must be set in production")
		}
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	sched, err := schedulerConfig(v)
	if err != nil {
		return nil, err
	}
	cfg.Scheduler = sched

	dedup, err := time.ParseDuration(v.GetString("NOTIFY_DEDUP_WINDOW"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_DEDUP_WINDOW: %w", err)
	}
	cfg.Notify = NotifyConfig{
		TelegramToken:  v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: v.GetInt64("TELEGRAM_CHAT_ID"),
		RatePerSec:     v.GetInt("NOTIFY_RATE_PER_SEC"),
		DedupWindow:    dedup,
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID == 0 {
		return nil, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func schedulerConfig(v *viper.Viper) (SchedulerConfig, error) {
	loc, err := time.LoadLocation(v.GetString("SCHEDULER_TIMEZONE"))
	if err != nil {
		return SchedulerConfig{}, fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString("TICK_TIMEOUT"))
	if err != nil || timeout <= 0 {
		return SchedulerConfig{}, fmt.Errorf("invalid TICK_TIMEOUT %q", v.GetString("TICK_TIMEOUT"))
	}
	sc := SchedulerConfig{
		Enabled:         v.GetBool("SCHEDULER_ENABLED"),
		Cron:            v.GetString("SCHEDULER_CRON"),
		Location:        loc,
		MaxCatchUp:      v.GetInt("SCHEDULER_MAX_CATCHUP"),
		ManualGraceDays: v.GetInt("SCHEDULER_MANUAL_GRACE_DAYS"),
		TickTimeout:     timeout,
	}
	if sc.MaxCatchUp < 1 {
		return SchedulerConfig{}, errors.New("SCHEDULER_MAX_CATCHUP must be at least 1")
	}
	if sc.ManualGraceDays < 0 {
		return SchedulerConfig{}, errors.New("SCHEDULER_MANUAL_GRACE_DAYS cannot be negative")
	}
	return sc, nil
}
