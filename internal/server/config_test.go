package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"PORT",
	"TLS_ENABLED",
	"TLS_CERT_FILE",
	"TLS_KEY_FILE",
	"ALLOWED_ORIGINS",
	"MAX_MESSAGE_SIZE",
	"SEND_BUFFER_SIZE",
	"RATE_LIMIT_BURST",
	"RATE_LIMIT_REFILL_INTERVAL",
}

// clearConfigEnv blanks every variable ApplyEnv reads; empty values are
// treated as unset.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, "cert.pem", cfg.TLS.CertFile)
	assert.Equal(t, "key.pem", cfg.TLS.KeyFile)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(64<<10), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RELAY_TEST_CERT", "/etc/relay/cert.pem")

	path := writeConfigFile(t, `
port: "9000"
tls:
  enabled: true
  cert_file: ${RELAY_TEST_CERT}
allowed_origins:
  - https://app.example.com
send_buffer_size: 32
rate_limit:
  burst: 5
  refill_interval: 2s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "/etc/relay/cert.pem", cfg.TLS.CertFile)
	assert.Equal(t, "key.pem", cfg.TLS.KeyFile, "unset keys keep their defaults")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 32, cfg.SendBufferSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)

	t.Setenv("PORT", "9100")
	t.Setenv("TLS_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfig_Errors(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	path := writeConfigFile(t, "port: [unterminated\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "numeric settings",
			env: map[string]string{
				"MAX_MESSAGE_SIZE": "1024",
				"SEND_BUFFER_SIZE": "8",
				"RATE_LIMIT_BURST": "3",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, int64(1024), cfg.MaxMessageSize)
				assert.Equal(t, 8, cfg.SendBufferSize)
				assert.Equal(t, 3, cfg.RateLimit.Burst)
			},
		},
		{
			name: "refill interval in seconds",
			env:  map[string]string{"RATE_LIMIT_REFILL_INTERVAL": "5"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 5*time.Second, cfg.RateLimit.RefillInterval)
			},
		},
		{
			name: "refill interval as duration",
			env:  map[string]string{"RATE_LIMIT_REFILL_INTERVAL": "250ms"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.RefillInterval)
			},
		},
		{
			name: "unparsable values are ignored",
			env: map[string]string{
				"MAX_MESSAGE_SIZE":           "-1",
				"SEND_BUFFER_SIZE":           "lots",
				"TLS_ENABLED":                "maybe",
				"RATE_LIMIT_REFILL_INTERVAL": "soon",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "tls files",
			env: map[string]string{
				"TLS_ENABLED":   "true",
				"TLS_CERT_FILE": "server.crt",
				"TLS_KEY_FILE":  "server.key",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, TLSConfig{Enabled: true, CertFile: "server.crt", KeyFile: "server.key"}, cfg.TLS)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := DefaultConfig()
			cfg.ApplyEnv()
			tt.check(t, cfg)
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Config{
		MaxMessageSize: -5,
		SendBufferSize: 0,
		RateLimit:      RateLimitConfig{Burst: -2},
	}.Sanitize()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "cert.pem", cfg.TLS.CertFile)
	assert.Equal(t, "key.pem", cfg.TLS.KeyFile)
	assert.Equal(t, int64(64<<10), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestSanitize_CopiesOrigins(t *testing.T) {
	original := Config{AllowedOrigins: []string{"https://a.example"}}
	cfg := original.Sanitize()

	cfg.AllowedOrigins[0] = "https://changed.example"
	assert.Equal(t, "https://a.example", original.AllowedOrigins[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "plain port", cfg: Config{Port: "8080"}},
		{name: "colon port", cfg: Config{Port: ":443"}},
		{name: "not a number", cfg: Config{Port: "http"}, wantErr: `invalid port "http"`},
		{name: "out of range", cfg: Config{Port: "70000"}, wantErr: `invalid port "70000"`},
		{
			name:    "tls without files",
			cfg:     Config{Port: "8443", TLS: TLSConfig{Enabled: true}},
			wantErr: "tls enabled but certificate or key file is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":8080", Config{Port: "8080"}.Addr())
	assert.Equal(t, ":9000", Config{Port: ":9000"}.Addr())
}
