package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Webhooks WebhookConfig  `mapstructure:"webhooks"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// WebhookConfig tunes the trigger scanner and delivery executor.
type WebhookConfig struct {
	ScanIntervalSeconds  int    `mapstructure:"scan_interval_seconds"`
	DeliveryTimeoutSecs  int    `mapstructure:"delivery_timeout_seconds"`
	TestTimeoutSecs      int    `mapstructure:"test_timeout_seconds"`
	SuppressionWindowMin int    `mapstructure:"suppression_window_minutes"`
	UserAgent            string `mapstructure:"user_agent"`
}

// AuthConfig controls the optional bearer-JWT gate on the management API.
// An empty secret disables it.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func (w WebhookConfig) ScanInterval() time.Duration {
	return time.Duration(w.ScanIntervalSeconds) * time.Second
}

func (w WebhookConfig) DeliveryTimeout() time.Duration {
	return time.Duration(w.DeliveryTimeoutSecs) * time.Second
}

func (w WebhookConfig) TestTimeout() time.Duration {
	return time.Duration(w.TestTimeoutSecs) * time.Second
}

func (w WebhookConfig) SuppressionWindow() time.Duration {
	return time.Duration(w.SuppressionWindowMin) * time.Minute
}

// Load reads app.yaml plus WEBHOOK_ENGINE_* environment overrides.
func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("WEBHOOK_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Keys without defaults need an explicit binding for env-only setups;
	// AutomaticEnv alone does not surface them through Unmarshal.
	viper.BindEnv("database.url")
	viper.BindEnv("redis.url")
	viper.BindEnv("auth.jwt_secret")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("webhooks.scan_interval_seconds", 60)
	viper.SetDefault("webhooks.delivery_timeout_seconds", 30)
	viper.SetDefault("webhooks.test_timeout_seconds", 10)
	viper.SetDefault("webhooks.suppression_window_minutes", 60)
	viper.SetDefault("webhooks.user_agent", "Planner-Webhook/1.0")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars can carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required (WEBHOOK_ENGINE_DATABASE_URL)")
	}
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("redis.url is required (WEBHOOK_ENGINE_REDIS_URL)")
	}

	return &cfg, nil
}
