/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the offer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	ProcessorAPIBaseURL        string `mapstructure:"PROCESSOR_API_BASE_URL"`
	ProcessorAPIKey            string `mapstructure:"PROCESSOR_API_KEY"`
	ProcessorWebhookSecret     string `mapstructure:"PROCESSOR_WEBHOOK_SECRET"`
	AuthJWKSURL                string `mapstructure:"AUTH_JWKS_URL"`
	PlatformFeePct             int    `mapstructure:"PLATFORM_FEE_PCT"`
	ReconcileMaxAttempts       int    `mapstructure:"RECONCILE_MAX_ATTEMPTS"`
	ReconcileIntervalSeconds   int    `mapstructure:"RECONCILE_INTERVAL_SECONDS"`
	OfferExpirySweepSchedule   string `mapstructure:"OFFER_EXPIRY_SWEEP_SCHEDULE"`
	ReconcileSweepSchedule     string `mapstructure:"RECONCILE_SWEEP_SCHEDULE"`
	CheckoutRateLimitPerMinute int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "collabry:rate_limit")
	viper.SetDefault("PLATFORM_FEE_PCT", 20)
	viper.SetDefault("RECONCILE_MAX_ATTEMPTS", 5)
	viper.SetDefault("RECONCILE_INTERVAL_SECONDS", 3)
	// Every 5 minutes, seconds-precision cron format.
	viper.SetDefault("OFFER_EXPIRY_SWEEP_SCHEDULE", "0 */5 * * * *")
	viper.SetDefault("RECONCILE_SWEEP_SCHEDULE", "30 */5 * * * *")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PROCESSOR_API_BASE_URL")
	_ = viper.BindEnv("PROCESSOR_API_KEY")
	_ = viper.BindEnv("PROCESSOR_WEBHOOK_SECRET")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("PLATFORM_FEE_PCT")
	_ = viper.BindEnv("RECONCILE_MAX_ATTEMPTS")
	_ = viper.BindEnv("RECONCILE_INTERVAL_SECONDS")
	_ = viper.BindEnv("OFFER_EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-injected PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "collabry:rate_limit"
	}

	if config.PlatformFeePct < 0 || config.PlatformFeePct > 100 {
		log.Printf("level=warn component=config msg=\"platform fee percent out of range; using default\" fee_pct=%d", config.PlatformFeePct)
		config.PlatformFeePct = 20
	}
	if config.ReconcileMaxAttempts <= 0 {
		config.ReconcileMaxAttempts = 5
	}
	if config.ReconcileIntervalSeconds <= 0 {
		config.ReconcileIntervalSeconds = 3
	}
	if config.CheckoutRateLimitPerMinute < 0 {
		config.CheckoutRateLimitPerMinute = 0
	}

	return
}
