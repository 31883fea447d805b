package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contactd/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadOption adjusts how Load validates the result.
type LoadOption func(*loadOptions)

type loadOptions struct {
	allowMissingSecrets bool
}

// AllowMissingSecrets accepts a configuration whose captcha secret or mail
// credentials are empty. The contact service then answers every submission
// with a configuration error instead of the process failing to start.
func AllowMissingSecrets() LoadOption {
	return func(o *loadOptions) { o.allowMissingSecrets = true }
}

// Load loads configuration from file and environment variables
func Load(configPath string, opts ...LoadOption) (*models.Config, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}

	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	validate := config.Validate
	if options.allowMissingSecrets {
		validate = config.ValidateStructure
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// lookup returns the first non-empty value among the given variable names.
// Prefixed CONTACT_* names win over the legacy deployment names.
func lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, true
		}
	}
	return "", false
}

func setString(dst *string, keys ...string) {
	if v, ok := lookup(keys...); ok {
		*dst = v
	}
}

func setInt(dst *int, keys ...string) {
	if v, ok := lookup(keys...); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, keys ...string) {
	if v, ok := lookup(keys...); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setFloat(dst *float64, keys ...string) {
	if v, ok := lookup(keys...); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, keys ...string) {
	if v, ok := lookup(keys...); ok {
		*dst = strings.ToLower(v) == "true"
	}
}

func setList(dst *[]string, keys ...string) {
	if v, ok := lookup(keys...); ok {
		*dst = splitAndTrim(v)
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	setInt(&config.Server.Port, "CONTACT_PORT", "PORT")
	setString(&config.Server.Host, "CONTACT_HOST")
	setDuration(&config.Server.ReadTimeout, "CONTACT_READ_TIMEOUT")
	setDuration(&config.Server.WriteTimeout, "CONTACT_WRITE_TIMEOUT")
	setDuration(&config.Server.IdleTimeout, "CONTACT_IDLE_TIMEOUT")
	if v, ok := lookup("CONTACT_MAX_BODY_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Server.MaxBodyBytes = n
		}
	}
	setList(&config.Server.TrustedProxies, "CONTACT_TRUSTED_PROXIES")
	setString(&config.Server.IdentifierSalt, "CONTACT_IDENTIFIER_SALT")
	setBool(&config.Server.CORS.Enabled, "CONTACT_CORS_ENABLED")
	setList(&config.Server.CORS.AllowedOrigins, "CONTACT_CORS_ALLOWED_ORIGINS")

	// Heuristics
	setDuration(&config.Heuristics.MinFillTime, "CONTACT_MIN_FILL_TIME")
	setDuration(&config.Heuristics.MaxFormAge, "CONTACT_MAX_FORM_AGE")

	// Rate limiting
	setInt(&config.RateLimit.MaxRequests, "CONTACT_RATE_LIMIT_MAX_REQUESTS")
	setDuration(&config.RateLimit.Window, "CONTACT_RATE_LIMIT_WINDOW")
	setDuration(&config.RateLimit.CleanupInterval, "CONTACT_RATE_LIMIT_CLEANUP_INTERVAL")
	setString(&config.RateLimit.Backend, "CONTACT_RATE_LIMIT_BACKEND")
	setString(&config.RateLimit.DSN, "CONTACT_RATE_LIMIT_DSN", "DATABASE_URL")
	setString(&config.RateLimit.FailMode, "CONTACT_RATE_LIMIT_FAIL_MODE")
	setInt(&config.RateLimit.GlobalPerMinute, "CONTACT_GLOBAL_SEND_PER_MINUTE")
	setInt(&config.RateLimit.GlobalBurst, "CONTACT_GLOBAL_SEND_BURST")

	// Captcha
	setString(&config.Captcha.Secret, "CONTACT_RECAPTCHA_SECRET", "RECAPTCHA_SECRET_KEY")
	setString(&config.Captcha.VerifyURL, "CONTACT_RECAPTCHA_VERIFY_URL")
	setString(&config.Captcha.ExpectedAction, "CONTACT_RECAPTCHA_ACTION")
	setFloat(&config.Captcha.MinScore, "CONTACT_RECAPTCHA_MIN_SCORE")
	setFloat(&config.Captcha.AcceptScore, "CONTACT_RECAPTCHA_ACCEPT_SCORE")
	setList(&config.Captcha.AllowedHostnames, "CONTACT_RECAPTCHA_HOSTNAMES")
	setDuration(&config.Captcha.Timeout, "CONTACT_RECAPTCHA_TIMEOUT")

	// Mail relay
	setString(&config.Mail.User, "CONTACT_MAIL_USER", "GMAIL_USER")
	setString(&config.Mail.ClientID, "CONTACT_MAIL_CLIENT_ID", "GMAIL_CLIENT_ID")
	setString(&config.Mail.ClientSecret, "CONTACT_MAIL_CLIENT_SECRET", "GMAIL_CLIENT_SECRET")
	setString(&config.Mail.RefreshToken, "CONTACT_MAIL_REFRESH_TOKEN", "GMAIL_REFRESH_TOKEN")
	setString(&config.Mail.SMTPHost, "CONTACT_MAIL_SMTP_HOST")
	setInt(&config.Mail.SMTPPort, "CONTACT_MAIL_SMTP_PORT")
	setString(&config.Mail.FromName, "CONTACT_MAIL_FROM_NAME")
	setString(&config.Mail.To, "CONTACT_MAIL_TO")
	setString(&config.Mail.Subject, "CONTACT_MAIL_SUBJECT")

	// Logging configuration
	setString(&config.Logging.Level, "CONTACT_LOG_LEVEL", "LOG_LEVEL")
	setString(&config.Logging.Format, "CONTACT_LOG_FORMAT", "LOG_FORMAT")
	setString(&config.Logging.Output, "CONTACT_LOG_OUTPUT")
	setString(&config.Logging.FilePath, "CONTACT_LOG_FILE_PATH")

	// Metrics and tracing
	setBool(&config.Metrics.Enabled, "CONTACT_METRICS_ENABLED")
	setString(&config.Metrics.Path, "CONTACT_METRICS_PATH")
	setInt(&config.Metrics.Port, "CONTACT_METRICS_PORT")
	setString(&config.Observability.ServiceName, "CONTACT_SERVICE_NAME")
	setBool(&config.Observability.Tracing.Enabled, "CONTACT_TRACING_ENABLED")
	setString(&config.Observability.Tracing.Exporter, "CONTACT_TRACING_EXPORTER")
	setString(&config.Observability.Tracing.OTLPEndpoint, "CONTACT_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat(&config.Observability.Tracing.SampleRate, "CONTACT_TRACING_SAMPLE_RATE")
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Server.TrustedProxies = []string{"10.0.0.0/8"}
	config.Server.CORS.AllowedOrigins = []string{"https://www.example.com"}
	config.Captcha.AllowedHostnames = []string{"www.example.com"}
	config.Captcha.Secret = "set-via-CONTACT_RECAPTCHA_SECRET"
	config.Mail.User = "owner@example.com"
	config.Mail.ClientID = "set-via-CONTACT_MAIL_CLIENT_ID"
	config.Mail.ClientSecret = "set-via-CONTACT_MAIL_CLIENT_SECRET"
	config.Mail.RefreshToken = "set-via-CONTACT_MAIL_REFRESH_TOKEN"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
