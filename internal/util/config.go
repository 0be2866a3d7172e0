package util

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AllowedOrigins          []string      `mapstructure:"ALLOWED_ORIGINS"`
	DatabaseDriver          string        `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	HTTPServerAddress       string        `mapstructure:"HTTP_SERVER_ADDRESS"`
	TokenSecretKey          string        `mapstructure:"TOKEN_SECRET_KEY"`
	AccessTokenDuration     time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	InternalAPIKey          string        `mapstructure:"INTERNAL_API_KEY"`
	RedisServerAddress      string        `mapstructure:"REDIS_SERVER_ADDRESS"`
	OverdueScanHour         uint          `mapstructure:"OVERDUE_SCAN_HOUR"`
	OverdueScanMinute       uint          `mapstructure:"OVERDUE_SCAN_MINUTE"`
	ReminderDedupeWindow    time.Duration `mapstructure:"REMINDER_DEDUPE_WINDOW"`
	ConnectionIdleTimeout   time.Duration `mapstructure:"CONNECTION_IDLE_TIMEOUT"`
	IdleReapInterval        time.Duration `mapstructure:"IDLE_REAP_INTERVAL"`
	NotificationRetention   time.Duration `mapstructure:"NOTIFICATION_RETENTION"`
	RetentionHour           uint          `mapstructure:"RETENTION_HOUR"`
	DigestHour              uint          `mapstructure:"DIGEST_HOUR"`
	WSMessageRate           float64       `mapstructure:"WS_MESSAGE_RATE"`
	WSMessageBurst          int           `mapstructure:"WS_MESSAGE_BURST"`
	SMTPHost                string        `mapstructure:"SMTP_HOST"`
	SMTPPort                int           `mapstructure:"SMTP_PORT"`
	SMTPUsername            string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword            string        `mapstructure:"SMTP_PASSWORD"`
	MailFrom                string        `mapstructure:"MAIL_FROM"`
	FirebaseCredentialsFile string        `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	DiscordBotToken         string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordChannelID        string        `mapstructure:"DISCORD_CHANNEL_ID"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// Set defaults for non-sensitive config
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("HTTP_SERVER_ADDRESS", "0.0.0.0:8080")
	viper.SetDefault("ACCESS_TOKEN_DURATION", "24h")
	viper.SetDefault("OVERDUE_SCAN_HOUR", 21)
	viper.SetDefault("OVERDUE_SCAN_MINUTE", 4)
	viper.SetDefault("REMINDER_DEDUPE_WINDOW", "24h")
	viper.SetDefault("CONNECTION_IDLE_TIMEOUT", "1h")
	viper.SetDefault("IDLE_REAP_INTERVAL", "30m")
	viper.SetDefault("NOTIFICATION_RETENTION", "720h")
	viper.SetDefault("RETENTION_HOUR", 2)
	viper.SetDefault("DIGEST_HOUR", 7)
	viper.SetDefault("WS_MESSAGE_RATE", 5)
	viper.SetDefault("WS_MESSAGE_BURST", 10)
	viper.SetDefault("SMTP_PORT", 587)

	// Prefer environment variables over config file
	viper.AutomaticEnv()

	// Load config file
	viper.SetConfigFile(path)
	if err = viper.ReadInConfig(); err != nil {
		return
	}

	// Unmarshal config into struct
	err = viper.UnmarshalExact(&config)
	if err != nil {
		return
	}

	// Validate required configuration
	err = validateConfig(config)
	return
}

func validateConfig(config Config) error {
	if config.DatabaseDriver != "postgres" && config.DatabaseDriver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", config.DatabaseDriver)
	}
	if config.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(config.TokenSecretKey) < 32 {
		return fmt.Errorf("TOKEN_SECRET_KEY must be at least 32 characters")
	}
	if config.InternalAPIKey == "" {
		return fmt.Errorf("INTERNAL_API_KEY is required")
	}
	if config.OverdueScanHour > 23 || config.RetentionHour > 23 || config.DigestHour > 23 {
		return fmt.Errorf("scheduled job hours must be between 0 and 23")
	}
	if config.OverdueScanMinute > 59 {
		return fmt.Errorf("OVERDUE_SCAN_MINUTE must be between 0 and 59")
	}
	if config.ReminderDedupeWindow <= 0 || config.ConnectionIdleTimeout <= 0 ||
		config.IdleReapInterval <= 0 || config.NotificationRetention <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	if config.WSMessageRate <= 0 || config.WSMessageBurst <= 0 {
		return fmt.Errorf("WS_MESSAGE_RATE and WS_MESSAGE_BURST must be positive")
	}

	return nil
}
