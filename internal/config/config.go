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

// Config holds all the configuration variables for the donation-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EmailEventExchange   string `mapstructure:"EMAIL_EVENT_EXCHANGE"`

	CRMAPIEndpointPrefix     string `mapstructure:"CRM_API_ENDPOINT_PREFIX"`
	CRMAPIUsername           string `mapstructure:"CRM_API_USERNAME"`
	CRMAPIPassword           string `mapstructure:"CRM_API_PASSWORD"`
	CRMAPIInsecureSkipVerify bool   `mapstructure:"CRM_API_INSECURE_SKIP_VERIFY"`

	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	StaffJWTSecret  string `mapstructure:"STAFF_JWT_SECRET"`
	AllowedOrigins  string `mapstructure:"ALLOWED_ORIGINS"`

	NotifyEmailSingle     string `mapstructure:"NOTIFY_EMAIL_SINGLE"`
	NotifyEmailRecurring  string `mapstructure:"NOTIFY_EMAIL_RECURRING"`
	NotifyEmailSponsor    string `mapstructure:"NOTIFY_EMAIL_SPONSOR"`
	NotifyEmailFundraiser string `mapstructure:"NOTIFY_EMAIL_FUNDRAISER"`
	NotifyEmailAdmin      string `mapstructure:"NOTIFY_EMAIL_ADMIN"`

	SubmissionRateLimitPerMinute int `mapstructure:"SUBMISSION_RATE_LIMIT_PER_MINUTE"`

	// WHERE_DID_YOU_HEAR_OPTIONS holds "code|label" pairs separated by
	// semicolons, e.g. "web|Website;press|Newspaper". Empty disables the
	// option-list validation.
	WhereDidYouHearOptions string `mapstructure:"WHERE_DID_YOU_HEAR_OPTIONS"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "donations:rate_limit")
	viper.SetDefault("EMAIL_EVENT_EXCHANGE", "donation_events")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("SUBMISSION_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("CRM_API_INSECURE_SKIP_VERIFY", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EMAIL_EVENT_EXCHANGE")
	_ = viper.BindEnv("CRM_API_ENDPOINT_PREFIX")
	_ = viper.BindEnv("CRM_API_USERNAME")
	_ = viper.BindEnv("CRM_API_PASSWORD")
	_ = viper.BindEnv("CRM_API_INSECURE_SKIP_VERIFY")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STAFF_JWT_SECRET")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("NOTIFY_EMAIL_SINGLE")
	_ = viper.BindEnv("NOTIFY_EMAIL_RECURRING")
	_ = viper.BindEnv("NOTIFY_EMAIL_SPONSOR")
	_ = viper.BindEnv("NOTIFY_EMAIL_FUNDRAISER")
	_ = viper.BindEnv("NOTIFY_EMAIL_ADMIN")
	_ = viper.BindEnv("SUBMISSION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WHERE_DID_YOU_HEAR_OPTIONS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "donations:rate_limit"
	}

	// The CRM client joins the prefix with relative actions, so the prefix
	// must end with a slash.
	config.CRMAPIEndpointPrefix = strings.TrimSpace(config.CRMAPIEndpointPrefix)
	if config.CRMAPIEndpointPrefix != "" && !strings.HasSuffix(config.CRMAPIEndpointPrefix, "/") {
		config.CRMAPIEndpointPrefix += "/"
	}

	if config.SubmissionRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative submission rate limit configured; coercing to zero\" limit=%d", config.SubmissionRateLimitPerMinute)
		config.SubmissionRateLimitPerMinute = 0
	}

	return
}

// Origins splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// HearOptions parses WHERE_DID_YOU_HEAR_OPTIONS into a code-to-label map.
// Malformed pairs are skipped with a warning.
func (c Config) HearOptions() map[string]string {
	raw := strings.TrimSpace(c.WhereDidYouHearOptions)
	if raw == "" {
		return nil
	}

	options := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, label, found := strings.Cut(pair, "|")
		code = strings.TrimSpace(code)
		label = strings.TrimSpace(label)
		if !found || code == "" || label == "" {
			log.Printf("level=warn component=config msg=\"skipping malformed hear option\" value=%q", pair)
			continue
		}
		options[code] = label
	}
	if len(options) == 0 {
		return nil
	}
	return options
}
