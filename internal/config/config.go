package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string `mapstructure:"ENV"`
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	DBDSN          string `mapstructure:"DB_DSN"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	TelegramToken   string `mapstructure:"TELEGRAM_TOKEN"`
	DisplayTimezone string `mapstructure:"DISPLAY_TIMEZONE"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	ZoomAccountID    string `mapstructure:"ZOOM_ACCOUNT_ID"`
	ZoomClientID     string `mapstructure:"ZOOM_CLIENT_ID"`
	ZoomClientSecret string `mapstructure:"ZOOM_CLIENT_SECRET"`
	ZoomAPIURL       string `mapstructure:"ZOOM_API_URL"`
	ZoomOAuthURL     string `mapstructure:"ZOOM_OAUTH_URL"`

	ProvisioningTimeout time.Duration `mapstructure:"PROVISIONING_TIMEOUT"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepLockTTL        time.Duration `mapstructure:"SWEEP_LOCK_TTL"`

	RecordingMaxAttempts int `mapstructure:"RECORDING_MAX_ATTEMPTS"`
	RecordingBatchSize   int `mapstructure:"RECORDING_BATCH_SIZE"`

	LessonPriceFromMentorRate bool `mapstructure:"LESSON_PRICE_FROM_MENTOR_RATE"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
}

var defaults = map[string]any{
	"ENV":                           "development",
	"HTTP_ADDR":                     ":8080",
	"DB_DSN":                        "",
	"MIGRATIONS_PATH":               "",
	"REDIS_ADDR":                    "",
	"REDIS_PASSWORD":                "",
	"REDIS_DB":                      0,
	"TELEGRAM_TOKEN":                "",
	"DISPLAY_TIMEZONE":              "UTC",
	"CORS_ALLOWED_ORIGINS":          "",
	"ZOOM_ACCOUNT_ID":               "",
	"ZOOM_CLIENT_ID":                "",
	"ZOOM_CLIENT_SECRET":            "",
	"ZOOM_API_URL":                  "",
	"ZOOM_OAUTH_URL":                "",
	"PROVISIONING_TIMEOUT":          15 * time.Second,
	"SWEEP_INTERVAL":                10 * time.Minute,
	"SWEEP_LOCK_TTL":                5 * time.Minute,
	"RECORDING_MAX_ATTEMPTS":        0,
	"RECORDING_BATCH_SIZE":          100,
	"LESSON_PRICE_FROM_MENTOR_RATE": false,
	"RATE_LIMIT_REQUESTS":           100,
	"RATE_LIMIT_WINDOW":             15 * time.Minute,
}

// Load reads .env if present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	return FromViper(viper.New())
}

// FromViper applies defaults and environment bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Unmarshal only sees keys viper knows about, so bind each one explicitly.
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.ProvisioningTimeout <= 0 {
		return fmt.Errorf("PROVISIONING_TIMEOUT must be positive")
	}
	if c.RecordingMaxAttempts < 0 {
		return fmt.Errorf("RECORDING_MAX_ATTEMPTS must not be negative")
	}
	if c.RecordingBatchSize <= 0 {
		return fmt.Errorf("RECORDING_BATCH_SIZE must be positive")
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the zone used to display lesson times in chat messages.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ZoomConfigured reports whether all Server-to-Server OAuth credentials are set.
func (c *Config) ZoomConfigured() bool {
	return c.ZoomAccountID != "" && c.ZoomClientID != "" && c.ZoomClientSecret != ""
}
