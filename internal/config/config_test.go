package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationd/internal/wifi"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, SystemBus, cfg.Bus)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "/var/lib/stationd/stationd.db", cfg.StorePath)
	assert.Equal(t, wifi.Config{
		ScanInterval:    15 * time.Second,
		RefreshInterval: 2 * time.Second,
		MaxScanResults:  100,
	}, cfg.Controller)
	assert.Equal(t, 30*time.Second, cfg.CredentialTTL)
	assert.False(t, cfg.LogDebug)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
bus: session
interface: wlan1
store:
  driver: bolt
  path: /tmp/x.db
controller:
  scan_interval: 30s
log:
  debug: true
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stationd.yaml"), yaml, 0o600))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(filepath.Join(dir, "stationd.yaml"))
	require.NoError(t, Read(v))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, SessionBus, cfg.Bus)
	assert.Equal(t, "wlan1", cfg.Interface)
	assert.Equal(t, "bolt", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.Controller.ScanInterval)
	assert.Equal(t, 2*time.Second, cfg.Controller.RefreshInterval)
	assert.True(t, cfg.LogDebug)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("STATIOND_STORE_DRIVER", "memory")
	v := New()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	good, err := Load(v)
	require.NoError(t, err)

	tests := map[string]func(*Config){
		"bus":      func(c *Config) { c.Bus = "usb" },
		"driver":   func(c *Config) { c.StoreDriver = "csv" },
		"path":     func(c *Config) { c.StorePath = "" },
		"scan":     func(c *Config) { c.Controller.ScanInterval = 0 },
		"refresh":  func(c *Config) { c.Controller.RefreshInterval = -time.Second },
		"max":      func(c *Config) { c.Controller.MaxScanResults = 0 },
		"cred-ttl": func(c *Config) { c.CredentialTTL = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := good
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	mem := good
	mem.StoreDriver = "memory"
	mem.StorePath = ""
	assert.NoError(t, mem.Validate())
}
