// Package server provides configuration helpers that define runtime defaults,
// layered loading and validation for the relay service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection frame rate
// limiting. A zero Burst disables limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// TLSConfig selects the encrypted listener. The plaintext and TLS paths are
// mutually exclusive.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Config holds the server configuration settings.
type Config struct {
	Port            string          `yaml:"port"`
	TLS             TLSConfig       `yaml:"tls"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxMessageSize  int64           `yaml:"max_message_size"`
	SendBufferSize  int             `yaml:"send_buffer_size"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

const (
	defaultPort            = "8080"
	defaultCertFile        = "cert.pem"
	defaultKeyFile         = "key.pem"
	defaultMaxMessageSize  = 64 << 10
	defaultSendBufferSize  = 256
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port: defaultPort,
		TLS: TLSConfig{
			CertFile: defaultCertFile,
			KeyFile:  defaultKeyFile,
		},
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		RateLimit:       RateLimitConfig{RefillInterval: defaultRefillInterval},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadConfig builds a Config from the defaults, the optional YAML file at
// path and the environment, in that order of precedence.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// mergeFile reads a YAML config file, expanding ${VAR} references, over the
// current values.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. Unset or
// unparsable values leave the current setting alone.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Port = port
	}

	if enabled := os.Getenv("TLS_ENABLED"); enabled != "" {
		c.TLS.Enabled = parseBoolValue(enabled, c.TLS.Enabled)
	}

	if cert := os.Getenv("TLS_CERT_FILE"); cert != "" {
		c.TLS.CertFile = cert
	}

	if key := os.Getenv("TLS_KEY_FILE"); key != "" {
		c.TLS.KeyFile = key
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parseMaxMessageSize(maxSize, c.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		c.SendBufferSize = parseIntValue(size, c.SendBufferSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseRefillInterval(interval, c.RateLimit.RefillInterval)
	}
}

// Sanitize replaces zero or negative settings with their defaults.
func (c Config) Sanitize() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}

	if c.TLS.CertFile == "" {
		c.TLS.CertFile = defaultCertFile
	}

	if c.TLS.KeyFile == "" {
		c.TLS.KeyFile = defaultKeyFile
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}

	if c.RateLimit.Burst < 0 {
		c.RateLimit.Burst = 0
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// Validate reports settings that cannot be repaired by Sanitize.
func (c Config) Validate() error {
	var errs []error

	port := strings.TrimPrefix(c.Port, ":")
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls enabled but certificate or key file is not set"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the configured port. Both "8080" and
// ":8080" are accepted.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
