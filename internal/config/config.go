package config

import (
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type FineConfig struct {
	DailyRate      decimal.Decimal
	MaxLateAmount  decimal.Decimal
	SweepInterval  time.Duration
	TotalsCacheTTL time.Duration
}

type NotificationConfig struct {
	ReminderDays   int
	TelegramToken  string
	TelegramChatID int64
}

// Config is the fully resolved runtime configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	LoanPeriodDays int
	Fines          FineConfig
	Notifications  NotificationConfig
	GatewayURL     string
}

var envBindings = map[string]string{
	"server.port":                    "PORT",
	"server.allowed_origins":         "CORS_ALLOWED_ORIGINS",
	"database.driver":                "DATABASE_DRIVER",
	"database.host":                  "DATABASE_HOST",
	"database.port":                  "DATABASE_PORT",
	"database.user":                  "DATABASE_USER",
	"database.password":              "DATABASE_PASSWORD",
	"database.name":                  "DATABASE_NAME",
	"database.ssl_mode":              "DATABASE_SSL_MODE",
	"database.path":                  "DATABASE_PATH",
	"redis.host":                     "REDIS_HOST",
	"redis.port":                     "REDIS_PORT",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"loan.period_days":               "LOAN_PERIOD_DAYS",
	"fines.daily_rate":               "FINE_DAILY_RATE",
	"fines.max_late_amount":          "FINE_MAX_LATE_AMOUNT",
	"fines.sweep_interval":           "FINE_SWEEP_INTERVAL",
	"fines.totals_cache_ttl":         "FINE_TOTALS_CACHE_TTL",
	"notifications.reminder_days":    "NOTIFY_REMINDER_DAYS",
	"notifications.telegram_token":   "TELEGRAM_TOKEN",
	"notifications.telegram_chat_id": "TELEGRAM_CHAT_ID",
	"gateway.url":                    "GATEWAY_URL",
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowed_origins", "https://*,http://*")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "library")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.path", "library.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("loan.period_days", 14)
	viper.SetDefault("fines.daily_rate", "0.50")
	viper.SetDefault("fines.max_late_amount", "0")
	viper.SetDefault("fines.sweep_interval", time.Hour)
	viper.SetDefault("fines.totals_cache_ttl", time.Minute*5)

	viper.SetDefault("notifications.reminder_days", 3)
	viper.SetDefault("notifications.telegram_token", "")
	viper.SetDefault("notifications.telegram_chat_id", 0)

	viper.SetDefault("gateway.url", "http://localhost:8080")
}

// Load reads .env (when present), binds environment overrides and resolves defaults
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("server.port"),
			AllowedOrigins: splitList(viper.GetString("server.allowed_origins")),
		},
		Database: DatabaseConfig{
			Driver:          viper.GetString("database.driver"),
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			Path:            viper.GetString("database.path"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		LoanPeriodDays: viper.GetInt("loan.period_days"),
		Fines: FineConfig{
			DailyRate:      getDecimal("fines.daily_rate", decimal.RequireFromString("0.50")),
			MaxLateAmount:  getDecimal("fines.max_late_amount", decimal.Zero),
			SweepInterval:  viper.GetDuration("fines.sweep_interval"),
			TotalsCacheTTL: viper.GetDuration("fines.totals_cache_ttl"),
		},
		Notifications: NotificationConfig{
			ReminderDays:   viper.GetInt("notifications.reminder_days"),
			TelegramToken:  viper.GetString("notifications.telegram_token"),
			TelegramChatID: viper.GetInt64("notifications.telegram_chat_id"),
		},
		GatewayURL: strings.TrimRight(viper.GetString("gateway.url"), "/"),
	}
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil || d.IsNegative() {
		log.Printf("Invalid %s %q, using %s", key, viper.GetString(key), fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
