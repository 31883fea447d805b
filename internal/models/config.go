// Package models - Service configuration and operational settings.
// This file defines the configuration tree for every stage of the contact pipeline
// plus the ambient server, logging, metrics and tracing settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, captcha, mail, rate limit, etc.)
// - Defaults mirror the production contact form (5 requests / 10 minutes, 0.7 score band)
// - Secrets have no defaults; validation refuses to start without them
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Rate limit backend constants
const (
	RateLimitBackendMemory   = "memory"
	RateLimitBackendPostgres = "postgres"
	RateLimitBackendSQLite   = "sqlite"
)

// Rate limit failure modes for store-backed limiters
const (
	FailModeClosed = "closed"
	FailModeOpen   = "open"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Heuristics: honeypot and timing thresholds
// - RateLimit: per-client window and global send budget
// - Captcha: human verification service settings
// - Mail: OAuth2 mail relay identity and message layout
// - Logging, Metrics, Observability: ambient operations
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Heuristics    HeuristicsConfig    `yaml:"heuristics" json:"heuristics"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Captcha       CaptchaConfig       `yaml:"captcha" json:"captcha"`
	Mail          MailConfig          `yaml:"mail" json:"mail"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" json:"port"`
	Host           string        `yaml:"host" json:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	TrustedProxies []string      `yaml:"trusted_proxies" json:"trusted_proxies"`
	IdentifierSalt string        `yaml:"identifier_salt" json:"-"`
	CORS           CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type HeuristicsConfig struct {
	MinFillTime  time.Duration `yaml:"min_fill_time" json:"min_fill_time"`
	MaxFormAge   time.Duration `yaml:"max_form_age" json:"max_form_age"`
	MaxClockSkew time.Duration `yaml:"max_clock_skew" json:"max_clock_skew"`
}

type RateLimitConfig struct {
	MaxRequests     int           `yaml:"max_requests" json:"max_requests"`
	Window          time.Duration `yaml:"window" json:"window"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	Backend         string        `yaml:"backend" json:"backend"`
	DSN             string        `yaml:"dsn" json:"-"`
	FailMode        string        `yaml:"fail_mode" json:"fail_mode"`
	GlobalPerMinute int           `yaml:"global_per_minute" json:"global_per_minute"`
	GlobalBurst     int           `yaml:"global_burst" json:"global_burst"`
}

type CaptchaConfig struct {
	Secret           string        `yaml:"secret" json:"-"`
	VerifyURL        string        `yaml:"verify_url" json:"verify_url"`
	ExpectedAction   string        `yaml:"expected_action" json:"expected_action"`
	MinScore         float64       `yaml:"min_score" json:"min_score"`
	AcceptScore      float64       `yaml:"accept_score" json:"accept_score"`
	AllowedHostnames []string      `yaml:"allowed_hostnames" json:"allowed_hostnames"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
}

type MailConfig struct {
	User         string `yaml:"user" json:"user"`
	ClientID     string `yaml:"client_id" json:"-"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	RefreshToken string `yaml:"refresh_token" json:"-"`
	SMTPHost     string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port"`
	FromName     string `yaml:"from_name" json:"from_name"`
	To           string `yaml:"to" json:"to"`
	Subject      string `yaml:"subject" json:"subject"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production defaults.
// Secrets (captcha secret, mail credentials) are intentionally left empty.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxBodyBytes:   16 << 10,
			TrustedProxies: []string{},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         3600,
			},
		},
		Heuristics: HeuristicsConfig{
			MinFillTime:  time.Second,
			MaxFormAge:   24 * time.Hour,
			MaxClockSkew: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:     5,
			Window:          10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			Backend:         RateLimitBackendMemory,
			FailMode:        FailModeClosed,
			GlobalPerMinute: 30,
			GlobalBurst:     10,
		},
		Captcha: CaptchaConfig{
			VerifyURL:        "https://www.google.com/recaptcha/api/siteverify",
			ExpectedAction:   "contact",
			MinScore:         0.5,
			AcceptScore:      0.7,
			AllowedHostnames: []string{},
			Timeout:          10 * time.Second,
		},
		Mail: MailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
			FromName: "Portfolio Contact",
			Subject:  "New message from portfolio contact form",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "contactd",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// Validate checks the whole configuration, required secrets included.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateStructure checks everything except the required secrets. Missing
// secrets are then reported per request by the contact service.
func (c *Config) ValidateStructure() error {
	return c.validate(false)
}

func (c *Config) validate(requireSecrets bool) error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Heuristics.Validate(); err != nil {
		return fmt.Errorf("invalid heuristics config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if requireSecrets {
		if c.Captcha.Secret == "" {
			return errors.New("invalid captcha config: captcha secret is required")
		}
		if missing := c.Mail.Missing(); len(missing) > 0 {
			return fmt.Errorf("invalid mail config: missing mail settings: %v", missing)
		}
	}

	if err := c.Captcha.validateSettings(); err != nil {
		return fmt.Errorf("invalid captcha config: %w", err)
	}

	if err := c.Mail.validateTransport(); err != nil {
		return fmt.Errorf("invalid mail config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	if _, err := sc.ParsedTrustedProxies(); err != nil {
		return err
	}

	return nil
}

// ParsedTrustedProxies parses TrustedProxies as CIDR prefixes. A bare address
// is accepted and treated as a single-host prefix.
func (sc *ServerConfig) ParsedTrustedProxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(sc.TrustedProxies))
	for _, raw := range sc.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (hc *HeuristicsConfig) Validate() error {
	if hc.MinFillTime < 0 {
		return errors.New("min fill time cannot be negative")
	}
	if hc.MaxFormAge < 0 {
		return errors.New("max form age cannot be negative")
	}
	if hc.MaxClockSkew < 0 {
		return errors.New("max clock skew cannot be negative")
	}
	if hc.MaxFormAge > 0 && hc.MaxFormAge <= hc.MinFillTime {
		return errors.New("max form age must be greater than min fill time")
	}
	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if rl.MaxRequests <= 0 {
		return errors.New("max requests must be positive")
	}
	if rl.Window <= 0 {
		return errors.New("window must be positive")
	}
	if rl.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive")
	}

	switch rl.Backend {
	case RateLimitBackendMemory:
	case RateLimitBackendPostgres, RateLimitBackendSQLite:
		if rl.DSN == "" {
			return fmt.Errorf("dsn is required for %s rate limit backend", rl.Backend)
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s", rl.Backend)
	}

	if rl.FailMode != FailModeClosed && rl.FailMode != FailModeOpen {
		return fmt.Errorf("invalid fail mode: %s", rl.FailMode)
	}

	if rl.GlobalPerMinute < 0 || rl.GlobalBurst < 0 {
		return errors.New("global send budget cannot be negative")
	}
	if rl.GlobalPerMinute > 0 && rl.GlobalBurst == 0 {
		return errors.New("global burst is required when global per minute is set")
	}

	return nil
}

func (cc *CaptchaConfig) Validate() error {
	if cc.Secret == "" {
		return errors.New("captcha secret is required")
	}
	return cc.validateSettings()
}

func (cc *CaptchaConfig) validateSettings() error {
	if cc.VerifyURL == "" {
		return errors.New("verify url cannot be empty")
	}
	if cc.ExpectedAction == "" {
		return errors.New("expected action cannot be empty")
	}
	if cc.MinScore < 0 || cc.MinScore > 1 || cc.AcceptScore < 0 || cc.AcceptScore > 1 {
		return errors.New("scores must be between 0 and 1")
	}
	if cc.AcceptScore < cc.MinScore {
		return errors.New("accept score cannot be below min score")
	}
	if cc.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Missing returns the names of required mail settings that are empty.
func (mc *MailConfig) Missing() []string {
	var missing []string
	if mc.User == "" {
		missing = append(missing, "user")
	}
	if mc.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if mc.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if mc.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	return missing
}

func (mc *MailConfig) Validate() error {
	if missing := mc.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing mail settings: %v", missing)
	}
	return mc.validateTransport()
}

func (mc *MailConfig) validateTransport() error {
	if mc.SMTPHost == "" {
		return errors.New("smtp host cannot be empty")
	}
	if mc.SMTPPort <= 0 || mc.SMTPPort > 65535 {
		return errors.New("smtp port must be between 1 and 65535")
	}
	return nil
}

// Recipient returns the mailbox that receives submissions, defaulting to the
// authenticated account itself.
func (mc *MailConfig) Recipient() string {
	if mc.To != "" {
		return mc.To
	}
	return mc.User
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	switch lc.Output {
	case "stdout", "stderr":
	case "file":
		if lc.FilePath == "" {
			return errors.New("file path is required when output is file")
		}
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("otlp endpoint is required for otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}
