package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PHONEBOOK_DATA_DIR",
		"PHONEBOOK_LISTEN_HOST",
		"PHONEBOOK_LISTEN_PORT",
		"VENDOR_SERVICE_API_KEY",
		"PHONEBOOK_API_KEY",
		"PHONEBOOK_LOG_LEVEL",
		"PHONEBOOK_LOG_FORMAT",
		"PHONEBOOK_PROVISION_TIMEOUT",
		"PHONEBOOK_ACK_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/voip-phonebook", cfg.DataDir)
	assert.Equal(t, "0.0.0.0", cfg.ListenHost)
	assert.Equal(t, 7680, cfg.ListenPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultProvisionTimeout, cfg.ProvisionTimeout)
	assert.Equal(t, DefaultAckTimeout, cfg.AckTimeout)
	assert.Empty(t, cfg.VendorSetupKey)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHONEBOOK_DATA_DIR", "/tmp/pbtest")
	t.Setenv("PHONEBOOK_LISTEN_PORT", "9000")
	t.Setenv("VENDOR_SERVICE_API_KEY", "secret")
	t.Setenv("PHONEBOOK_PROVISION_TIMEOUT", "45s")
	t.Setenv("PHONEBOOK_ACK_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pbtest", cfg.DataDir)
	assert.Equal(t, 9000, cfg.ListenPort)
	assert.Equal(t, "secret", cfg.VendorSetupKey)
	assert.Equal(t, 45*time.Second, cfg.ProvisionTimeout)
	assert.Equal(t, 2*time.Second, cfg.AckTimeout)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHONEBOOK_LISTEN_PORT", "not-a-port")
	t.Setenv("PHONEBOOK_PROVISION_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7680, cfg.ListenPort)
	assert.Equal(t, DefaultProvisionTimeout, cfg.ProvisionTimeout)
}

func TestValidate(t *testing.T) {
	cfg := &Config{ListenPort: 7680, ProvisionTimeout: time.Second, AckTimeout: time.Second}
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.ListenPort = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ProvisionTimeout = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.AckTimeout = -time.Second
	assert.Error(t, bad.Validate())
}
