// Package config loads server configuration from the environment, with an
// optional .env file for development deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultProvisionTimeout bounds how long a freshly attached vendor
	// connection may sit in waiting_for_provision.
	DefaultProvisionTimeout = 30 * time.Second
	// DefaultAckTimeout bounds every business request/acknowledgement
	// exchange (grant, revoke).
	DefaultAckTimeout = 5 * time.Second
)

// Config holds the runtime configuration for phonebookd.
type Config struct {
	DataDir    string
	ListenHost string
	ListenPort int

	// VendorSetupKey is the shared secret vendor services must present in
	// the channel handshake. When empty no vendor can attach.
	VendorSetupKey string

	// APIKey protects the management API. When empty the management
	// routes respond with 503.
	APIKey string

	LogLevel  string
	LogFormat string

	ProvisionTimeout time.Duration
	AckTimeout       time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to load .env file")
		}
	}

	cfg := &Config{
		DataDir:          envOr("PHONEBOOK_DATA_DIR", "/var/lib/voip-phonebook"),
		ListenHost:       envOr("PHONEBOOK_LISTEN_HOST", "0.0.0.0"),
		ListenPort:       envIntOr("PHONEBOOK_LISTEN_PORT", 7680),
		VendorSetupKey:   os.Getenv("VENDOR_SERVICE_API_KEY"),
		APIKey:           os.Getenv("PHONEBOOK_API_KEY"),
		LogLevel:         envOr("PHONEBOOK_LOG_LEVEL", "info"),
		LogFormat:        envOr("PHONEBOOK_LOG_FORMAT", "auto"),
		ProvisionTimeout: envDurationOr("PHONEBOOK_PROVISION_TIMEOUT", DefaultProvisionTimeout),
		AckTimeout:       envDurationOr("PHONEBOOK_ACK_TIMEOUT", DefaultAckTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.ProvisionTimeout <= 0 {
		return fmt.Errorf("provision timeout must be positive, got %s", c.ProvisionTimeout)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive, got %s", c.AckTimeout)
	}
	if c.VendorSetupKey == "" {
		log.Warn().Msg("VENDOR_SERVICE_API_KEY is not set, vendor services will not be able to register")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}
