// Package config loads gateway configuration from the environment, an
// optional .env file, and an optional JSON or YAML config file layered on
// top. Env and file values are merged with env winning ties, matching the
// "env then merged with optional JSON/YAML file" ordering of spec section 6.
//
// Author: momentics <momentics@gmail.com>
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize is the hard limit on config file size (spec section 6).
const MaxConfigFileSize = 1 << 20 // 1 MiB

// MaxBodySize is the hard limit on HTTP request bodies (spec section 6).
const MaxBodySize = 16 << 20 // 16 MiB

type JWTConfig struct {
	PublicKeyPath     string `json:"public_key_path" yaml:"public_key_path"`
	Algorithm         string `json:"algorithm" yaml:"algorithm"`
	ExpectedIssuer    string `json:"expected_issuer" yaml:"expected_issuer"`
	ExpectedAudience  string `json:"expected_audience" yaml:"expected_audience"`
	ClockSkewSeconds  int    `json:"clock_skew_seconds" yaml:"clock_skew_seconds"`
	RequireExp        bool   `json:"require_exp" yaml:"require_exp"`
}

type RateLimitConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	RequestsPerWindow int `json:"requests_per_window" yaml:"requests_per_window"`
	WindowSeconds    int  `json:"window_seconds" yaml:"window_seconds"`
	BurstSize        int  `json:"burst_size" yaml:"burst_size"`
}

type IPWhitelistConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Entries []string `json:"entries" yaml:"entries"`
}

type SSLConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	CertPath     string `json:"cert_path" yaml:"cert_path"`
	KeyPath      string `json:"key_path" yaml:"key_path"`
	CAPath       string `json:"ca_path" yaml:"ca_path"`
	VerifyClient bool   `json:"verify_client" yaml:"verify_client"`
}

type CORSConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods  []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders  []string `json:"allowed_headers" yaml:"allowed_headers"`
	MaxAgeSeconds   int      `json:"max_age_seconds" yaml:"max_age_seconds"`
}

type WebSocketConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	MaxConnections  int  `json:"max_connections" yaml:"max_connections"`
	MessageMaxSize  int  `json:"message_max_size" yaml:"message_max_size"`
	PingIntervalSec int  `json:"ping_interval_sec" yaml:"ping_interval_sec"`
	PongTimeoutSec  int  `json:"pong_timeout_sec" yaml:"pong_timeout_sec"`
}

type IPCTestsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	TestClientPath string `json:"test_client_path" yaml:"test_client_path"`
	ReportsDir     string `json:"reports_dir" yaml:"reports_dir"`
}

// Config is the fully merged, process-wide gateway configuration.
type Config struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	AuthMode  string `json:"auth_mode" yaml:"auth_mode"` // "token" | "jwt"
	AuthToken string `json:"auth_token" yaml:"auth_token"`
	JWT       JWTConfig `json:"jwt" yaml:"jwt"`

	BrowserPath       string `json:"browser_path" yaml:"browser_path"`
	MaxConnections    int    `json:"max_connections" yaml:"max_connections"`
	RequestTimeoutMs  int    `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	BrowserTimeoutMs  int    `json:"browser_timeout_ms" yaml:"browser_timeout_ms"`

	RateLimit   RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
	IPWhitelist IPWhitelistConfig `json:"ip_whitelist" yaml:"ip_whitelist"`
	SSL         SSLConfig         `json:"ssl" yaml:"ssl"`
	CORS        CORSConfig        `json:"cors" yaml:"cors"`
	WebSocket   WebSocketConfig   `json:"websocket" yaml:"websocket"`
	IPCTests    IPCTestsConfig    `json:"ipc_tests" yaml:"ipc_tests"`

	GracefulShutdown    bool `json:"graceful_shutdown" yaml:"graceful_shutdown"`
	ShutdownTimeoutSec  int  `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	KeepAliveTimeoutSec int  `json:"keep_alive_timeout_sec" yaml:"keep_alive_timeout_sec"`
	LogRequests         bool `json:"log_requests" yaml:"log_requests"`
}

// RequestTimeout and BrowserTimeout return the configured durations.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
func (c *Config) BrowserTimeout() time.Duration {
	return time.Duration(c.BrowserTimeoutMs) * time.Millisecond
}
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
func (c *Config) KeepAliveTimeout() time.Duration {
	return time.Duration(c.KeepAliveTimeoutSec) * time.Second
}

// Default returns the baseline configuration with every spec section-6
// default applied.
func Default() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 8080,
		AuthMode: "token",
		JWT: JWTConfig{
			Algorithm:        "RS256",
			ClockSkewSeconds: 60,
			RequireExp:       true,
		},
		MaxConnections:   100,
		RequestTimeoutMs: 30000,
		BrowserTimeoutMs: 60000,
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 100,
			WindowSeconds:     60,
			BurstSize:         20,
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAgeSeconds:  300,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			MaxConnections:  50,
			MessageMaxSize:  16 << 20,
			PingIntervalSec: 30,
			PongTimeoutSec:  10,
		},
		GracefulShutdown:    true,
		ShutdownTimeoutSec:  30,
		KeepAliveTimeoutSec: 60,
	}
}

// Load builds configuration from (in order): defaults, an optional .env
// file, an optional JSON/YAML file named by GATEWAY_CONFIG_FILE or the
// configFile argument, and then the process environment, so env values
// always win over the file.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	// Optional .env preload — never overrides variables already set in
	// the real environment.
	_ = godotenv.Load()

	if configFile == "" {
		configFile = os.Getenv("GATEWAY_CONFIG_FILE")
	}
	if configFile != "" {
		if err := mergeFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", configFile, err)
		}
	}

	applyEnv(cfg)

	if cfg.BrowserPath == "" {
		return nil, fmt.Errorf("config: browser_path is required")
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("config file exceeds %d bytes", MaxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv overlays GATEWAY_* environment variables, the authoritative
// source per spec section 6 ("read from env then merged with... file").
func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	intv := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolv := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("GATEWAY_HOST", &cfg.Host)
	intv("GATEWAY_PORT", &cfg.Port)
	str("GATEWAY_AUTH_MODE", &cfg.AuthMode)
	str("GATEWAY_AUTH_TOKEN", &cfg.AuthToken)
	str("GATEWAY_JWT_PUBLIC_KEY_PATH", &cfg.JWT.PublicKeyPath)
	str("GATEWAY_JWT_ALGORITHM", &cfg.JWT.Algorithm)
	str("GATEWAY_JWT_ISSUER", &cfg.JWT.ExpectedIssuer)
	str("GATEWAY_JWT_AUDIENCE", &cfg.JWT.ExpectedAudience)
	intv("GATEWAY_JWT_CLOCK_SKEW_SECONDS", &cfg.JWT.ClockSkewSeconds)
	boolv("GATEWAY_JWT_REQUIRE_EXP", &cfg.JWT.RequireExp)
	str("GATEWAY_BROWSER_PATH", &cfg.BrowserPath)
	intv("GATEWAY_MAX_CONNECTIONS", &cfg.MaxConnections)
	intv("GATEWAY_REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMs)
	intv("GATEWAY_BROWSER_TIMEOUT_MS", &cfg.BrowserTimeoutMs)
	boolv("GATEWAY_RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	intv("GATEWAY_RATE_LIMIT_REQUESTS_PER_WINDOW", &cfg.RateLimit.RequestsPerWindow)
	intv("GATEWAY_RATE_LIMIT_WINDOW_SECONDS", &cfg.RateLimit.WindowSeconds)
	intv("GATEWAY_RATE_LIMIT_BURST_SIZE", &cfg.RateLimit.BurstSize)
	boolv("GATEWAY_IP_WHITELIST_ENABLED", &cfg.IPWhitelist.Enabled)
	if v, ok := os.LookupEnv("GATEWAY_IP_WHITELIST_ENTRIES"); ok {
		cfg.IPWhitelist.Entries = splitCSV(v)
	}
	boolv("GATEWAY_SSL_ENABLED", &cfg.SSL.Enabled)
	str("GATEWAY_SSL_CERT_PATH", &cfg.SSL.CertPath)
	str("GATEWAY_SSL_KEY_PATH", &cfg.SSL.KeyPath)
	str("GATEWAY_SSL_CA_PATH", &cfg.SSL.CAPath)
	boolv("GATEWAY_SSL_VERIFY_CLIENT", &cfg.SSL.VerifyClient)
	boolv("GATEWAY_CORS_ENABLED", &cfg.CORS.Enabled)
	if v, ok := os.LookupEnv("GATEWAY_CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitCSV(v)
	}
	boolv("GATEWAY_WEBSOCKET_ENABLED", &cfg.WebSocket.Enabled)
	intv("GATEWAY_WEBSOCKET_MAX_CONNECTIONS", &cfg.WebSocket.MaxConnections)
	intv("GATEWAY_WEBSOCKET_MESSAGE_MAX_SIZE", &cfg.WebSocket.MessageMaxSize)
	intv("GATEWAY_WEBSOCKET_PING_INTERVAL_SEC", &cfg.WebSocket.PingIntervalSec)
	intv("GATEWAY_WEBSOCKET_PONG_TIMEOUT_SEC", &cfg.WebSocket.PongTimeoutSec)
	boolv("GATEWAY_GRACEFUL_SHUTDOWN", &cfg.GracefulShutdown)
	intv("GATEWAY_SHUTDOWN_TIMEOUT_SEC", &cfg.ShutdownTimeoutSec)
	intv("GATEWAY_KEEP_ALIVE_TIMEOUT_SEC", &cfg.KeepAliveTimeoutSec)
	boolv("GATEWAY_LOG_REQUESTS", &cfg.LogRequests)
	boolv("GATEWAY_IPC_TESTS_ENABLED", &cfg.IPCTests.Enabled)
	str("GATEWAY_IPC_TESTS_CLIENT_PATH", &cfg.IPCTests.TestClientPath)
	str("GATEWAY_IPC_TESTS_REPORTS_DIR", &cfg.IPCTests.ReportsDir)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
