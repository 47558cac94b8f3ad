// Package config loads the daemon configuration through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stationd/internal/store"
	"stationd/internal/wifi"
)

const (
	Name       = "stationd"
	EnvPrefix  = "STATIOND"
	SystemBus  = "system"
	SessionBus = "session"
)

// Config is the resolved daemon configuration.
type Config struct {
	Bus       string
	Interface string // empty selects the first iwd station

	StoreDriver string
	StorePath   string

	Controller wifi.Config

	CredentialTTL time.Duration

	LogFile  string
	LogDebug bool
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bus", SystemBus)
	v.SetDefault("interface", "")
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.path", "/var/lib/stationd/stationd.db")
	v.SetDefault("controller.scan_interval", wifi.DefaultScanInterval)
	v.SetDefault("controller.refresh_interval", wifi.DefaultRefreshInterval)
	v.SetDefault("controller.max_scan_results", wifi.DefaultMaxScanResults)
	v.SetDefault("iwd.credential_ttl", 30*time.Second)
	v.SetDefault("log.file", "")
	v.SetDefault("log.debug", false)
}

// New returns a viper instance with defaults, search paths and environment
// binding (STATIOND_STORE_DRIVER overrides store.driver).
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/stationd")
	v.AddConfigPath("$HOME/.config/stationd")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file if one exists. A missing file is not an error.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Bus:         v.GetString("bus"),
		Interface:   v.GetString("interface"),
		StoreDriver: v.GetString("store.driver"),
		StorePath:   v.GetString("store.path"),
		Controller: wifi.Config{
			ScanInterval:    v.GetDuration("controller.scan_interval"),
			RefreshInterval: v.GetDuration("controller.refresh_interval"),
			MaxScanResults:  v.GetInt("controller.max_scan_results"),
		},
		CredentialTTL: v.GetDuration("iwd.credential_ttl"),
		LogFile:       v.GetString("log.file"),
		LogDebug:      v.GetBool("log.debug"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Bus {
	case SystemBus, SessionBus:
	default:
		return fmt.Errorf("bus must be %q or %q, got %q", SystemBus, SessionBus, c.Bus)
	}
	switch c.StoreDriver {
	case store.DriverSQLite, store.DriverBolt:
		if c.StorePath == "" {
			return fmt.Errorf("store.path is required for driver %q", c.StoreDriver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.StoreDriver)
	}
	if c.Controller.ScanInterval <= 0 {
		return fmt.Errorf("controller.scan_interval must be positive")
	}
	if c.Controller.RefreshInterval <= 0 {
		return fmt.Errorf("controller.refresh_interval must be positive")
	}
	if c.Controller.MaxScanResults <= 0 {
		return fmt.Errorf("controller.max_scan_results must be positive")
	}
	if c.CredentialTTL <= 0 {
		return fmt.Errorf("iwd.credential_ttl must be positive")
	}
	return nil
}
