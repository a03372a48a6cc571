/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures both run modes by reading operating system environment variables: the chat
listener and its capacity limits for the server, and the dial address and display name for
the client.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Settings
	Environment string

	// Chat Listener Settings
	Host         string
	Port         int
	PollInterval time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// Admin Surface Settings
	AdminPort      int
	AllowedOrigins []string

	// TrustProxy makes the admin surface take client IPs from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a reverse proxy that overwrites those headers.
	TrustProxy bool

	// Capacity Settings
	MaxClients        int
	MaxChannels       int
	MaxChannelMembers int
	MaxChannelHistory int

	// Admission Settings
	AcceptRate  float64
	AcceptBurst int

	// Client Settings
	ServerAddress string
	Username      string
}

// ListenAddr returns the host:port the chat listener binds to.
func (c *AppConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment reports whether the development environment is active.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// --- Chat Listener Settings ---
	cfg.Host = os.Getenv("CHAT_HOST")

	if cfg.Port, err = intEnv("PORT", 30302); err != nil {
		return nil, err
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}

	if cfg.IdleTimeout, err = durationEnv("IDLE_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	if cfg.WriteTimeout, err = durationEnv("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// --- Admin Surface Settings ---
	if cfg.AdminPort, err = intEnv("ADMIN_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.AdminPort != 0 && (cfg.AdminPort < 1024 || cfg.AdminPort > 65535) {
		return nil, fmt.Errorf("admin port number %d is outside the recommended range (%d-%d)", cfg.AdminPort, 1024, 65535)
	}
	if cfg.AdminPort == cfg.Port {
		return nil, fmt.Errorf("ADMIN_PORT and PORT must differ, both are %d", cfg.Port)
	}

	if cfg.TrustProxy, err = boolEnv("TRUST_PROXY", false); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	// --- Capacity Settings ---
	limits := []struct {
		name string
		def  int
		dst  *int
	}{
		{"MAX_CLIENTS", 100, &cfg.MaxClients},
		{"MAX_CHANNELS", 1000, &cfg.MaxChannels},
		{"MAX_CHANNEL_MEMBERS", 1000, &cfg.MaxChannelMembers},
		{"MAX_CHANNEL_HISTORY", 100, &cfg.MaxChannelHistory},
	}
	for _, l := range limits {
		v, err := intEnv(l.name, l.def)
		if err != nil {
			return nil, err
		}
		if v < 1 {
			return nil, fmt.Errorf("%s must be at least 1, got %d", l.name, v)
		}
		*l.dst = v
	}

	// --- Admission Settings ---
	if cfg.AcceptRate, err = floatEnv("ACCEPT_RATE", 2); err != nil {
		return nil, err
	}
	if cfg.AcceptBurst, err = intEnv("ACCEPT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.AcceptRate <= 0 || cfg.AcceptBurst < 1 {
		return nil, fmt.Errorf("ACCEPT_RATE and ACCEPT_BURST must be positive")
	}

	// --- Client Settings ---
	cfg.ServerAddress = os.Getenv("SERVER_ADDRESS")
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = fmt.Sprintf("localhost:%d", cfg.Port)
	}

	cfg.Username = strings.TrimSpace(os.Getenv("CHAT_USERNAME"))

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func boolEnv(name string, def bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func floatEnv(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}
