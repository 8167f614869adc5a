// Package config loads the medicine server configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultServerPort         = 8080
	DefaultLogLevel           = "info"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsEnabled     = true
	DefaultExpiryWarningDays  = 30
	DefaultWSSnapshotInterval = time.Minute
	DefaultTimezone           = "Local"
	DefaultCORSOrigins        = "*"
	DefaultAuthMode           = "none"
	DefaultTLSClientAuth      = "none"
)

// Environment variable names.
const (
	EnvServerPort         = "APP_SERVER_PORT"
	EnvLogLevel           = "APP_LOG_LEVEL"
	EnvShutdownTimeout    = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled     = "APP_METRICS_ENABLED"
	EnvExpiryWarningDays  = "APP_EXPIRY_WARNING_DAYS"
	EnvWSSnapshotInterval = "APP_WS_SNAPSHOT_INTERVAL"
	EnvTimezone           = "APP_TIMEZONE"
	EnvCORSOrigins        = "APP_CORS_ALLOWED_ORIGINS"
	EnvAuthMode           = "APP_AUTH_MODE"
	EnvTLSEnabled         = "APP_TLS_ENABLED"
	EnvTLSCertPath        = "APP_TLS_CERT_PATH"
	EnvTLSKeyPath         = "APP_TLS_KEY_PATH"
	EnvTLSCAPath          = "APP_TLS_CA_PATH"
	EnvTLSClientAuth      = "APP_TLS_CLIENT_AUTH"
	EnvTLSClientOrgs      = "APP_TLS_CLIENT_ORGANIZATIONS"
	EnvBasicAuthUsers     = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys            = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	CORSOrigins     []string

	// Medicine tracking settings.
	ExpiryWarningDays  int
	WSSnapshotInterval time.Duration
	Timezone           string

	// Authentication mode: none, mtls, basic, apikey, multi.
	AuthMode string

	// TLS settings.
	TLSEnabled    bool
	TLSCertPath   string
	TLSKeyPath    string
	TLSCAPath     string
	TLSClientAuth string

	// Client certificate subject organizations accepted by mTLS auth.
	// Empty accepts any organization.
	TLSClientOrganizations []string

	// Basic auth users, "user1:bcrypt_hash,user2:bcrypt_hash".
	BasicAuthUsers string

	// API keys, "key1:name1,key2:name2".
	APIKeys string
}

// Validation errors.
var (
	ErrInvalidServerPort         = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel           = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout    = errors.New("shutdown timeout must be positive")
	ErrInvalidExpiryWarningDays  = errors.New("expiry warning days must not be negative")
	ErrInvalidWSSnapshotInterval = errors.New("websocket snapshot interval must be positive")
	ErrInvalidTimezone           = errors.New("timezone must be a valid IANA zone name")
	ErrInvalidAuthMode           = errors.New("auth mode must be one of: none, mtls, basic, apikey, multi")
	ErrInvalidTLSClientAuth      = errors.New("TLS client auth must be one of: none, request, require")
	ErrInvalidTLSCertRequired    = errors.New("TLS cert path and key path must be set when TLS is enabled")
	ErrInvalidTLSCARequired      = errors.New("TLS CA path must be set when TLS client auth is require")
	ErrInvalidMTLSConfig         = errors.New("mtls auth mode requires TLS enabled with client auth require")
	ErrInvalidBasicAuthConfig    = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig       = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig    = errors.New("at least one auth config must be provided when auth mode is multi")
)

var (
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validAuthModes = map[string]bool{"none": true, "mtls": true, "basic": true, "apikey": true, "multi": true}
	validTLSClient = map[string]bool{"none": true, "request": true, "require": true}
)

// Load reads configuration from environment variables with defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         DefaultServerPort,
		LogLevel:           DefaultLogLevel,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsEnabled:     DefaultMetricsEnabled,
		CORSOrigins:        splitList(DefaultCORSOrigins),
		ExpiryWarningDays:  DefaultExpiryWarningDays,
		WSSnapshotInterval: DefaultWSSnapshotInterval,
		Timezone:           DefaultTimezone,
		AuthMode:           DefaultAuthMode,
		TLSClientAuth:      DefaultTLSClientAuth,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadTrackingEnv(); err != nil {
		return err
	}

	return c.loadAuthEnv()
}

func (c *Config) loadServerEnv() error {
	if err := envInt(EnvServerPort, &c.ServerPort); err != nil {
		return err
	}

	envString(EnvLogLevel, &c.LogLevel)

	if err := envDuration(EnvShutdownTimeout, &c.ShutdownTimeout); err != nil {
		return err
	}

	if err := envBool(EnvMetricsEnabled, &c.MetricsEnabled); err != nil {
		return err
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	return nil
}

func (c *Config) loadTrackingEnv() error {
	if err := envInt(EnvExpiryWarningDays, &c.ExpiryWarningDays); err != nil {
		return err
	}

	if err := envDuration(EnvWSSnapshotInterval, &c.WSSnapshotInterval); err != nil {
		return err
	}

	envString(EnvTimezone, &c.Timezone)

	return nil
}

func (c *Config) loadAuthEnv() error {
	envString(EnvAuthMode, &c.AuthMode)

	if err := envBool(EnvTLSEnabled, &c.TLSEnabled); err != nil {
		return err
	}

	envString(EnvTLSCertPath, &c.TLSCertPath)
	envString(EnvTLSKeyPath, &c.TLSKeyPath)
	envString(EnvTLSCAPath, &c.TLSCAPath)
	envString(EnvTLSClientAuth, &c.TLSClientAuth)
	if val := os.Getenv(EnvTLSClientOrgs); val != "" {
		c.TLSClientOrganizations = splitList(val)
	}
	envString(EnvBasicAuthUsers, &c.BasicAuthUsers)
	envString(EnvAPIKeys, &c.APIKeys)

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateTracking(); err != nil {
		return err
	}

	return c.validateAuth()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

func (c *Config) validateTracking() error {
	if c.ExpiryWarningDays < 0 {
		return ErrInvalidExpiryWarningDays
	}

	if c.WSSnapshotInterval <= 0 {
		return ErrInvalidWSSnapshotInterval
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateAuth() error {
	mode := orDefault(c.AuthMode, DefaultAuthMode)
	clientAuth := orDefault(c.TLSClientAuth, DefaultTLSClientAuth)

	if !validAuthModes[mode] {
		return ErrInvalidAuthMode
	}

	if !validTLSClient[clientAuth] {
		return ErrInvalidTLSClientAuth
	}

	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return ErrInvalidTLSCertRequired
	}

	if clientAuth == "require" && c.TLSCAPath == "" {
		return ErrInvalidTLSCARequired
	}

	switch mode {
	case "mtls":
		if !c.ClientCertsRequired() {
			return ErrInvalidMTLSConfig
		}
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" && !c.ClientCertsRequired() {
			return ErrInvalidMultiAuthConfig
		}
	}

	return nil
}

// ClientCertsRequired reports whether TLS is on and demands client
// certificates.
func (c *Config) ClientCertsRequired() bool {
	return c.TLSEnabled && c.TLSClientAuth == "require"
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == DefaultTimezone {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}

	return loc, nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = n

	return nil
}

func envBool(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = b

	return nil
}

func envDuration(name string, dst *time.Duration) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d

	return nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
