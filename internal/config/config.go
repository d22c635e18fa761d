package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/screenlink/internal/wifi"
)

const (
	appName    = "screenlink"
	configFile = "config.yaml"

	// SystemConfigPath is where the appliance looks for its configuration
	// when no --config flag is given.
	SystemConfigPath = "/etc/screenlink/config.yaml"
)

// Radio driver names.
const (
	DriverNMCLI     = "nmcli"
	DriverSimulator = "sim"
)

// Config is the appliance configuration.
type Config struct {
	Version     int               `yaml:"version"`
	LogLevel    string            `yaml:"log_level,omitempty"`
	AccessPoint AccessPointConfig `yaml:"access_point"`
	Portal      PortalConfig      `yaml:"portal"`
	Radio       RadioConfig       `yaml:"radio"`
	Timing      TimingConfig      `yaml:"timing"`
	Store       StoreConfig       `yaml:"store"`
	Announce    AnnounceConfig    `yaml:"announce"`
	Restart     RestartConfig     `yaml:"restart"`
	Sim         SimConfig         `yaml:"sim,omitempty"`
}

// AccessPointConfig describes the temporary setup network.
type AccessPointConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password,omitempty"` // empty = open network
	Address  string `yaml:"address"`            // CIDR, e.g. 192.168.4.1/24
}

// PortalConfig holds the captive portal listeners. They bind to the AP
// address unless ListenHost is set.
type PortalConfig struct {
	HTTPPort   int    `yaml:"http_port"`
	DNSPort    int    `yaml:"dns_port"`
	ListenHost string `yaml:"listen_host,omitempty"`
}

// RadioConfig selects and configures the radio driver.
type RadioConfig struct {
	Driver      string        `yaml:"driver"`
	Interface   string        `yaml:"interface"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// TimingConfig holds the supervisor and station timings.
type TimingConfig struct {
	Tick             time.Duration `yaml:"tick"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`
	PortalGrace      time.Duration `yaml:"portal_grace"`
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	RestartDelay     time.Duration `yaml:"restart_delay"`
	PortalRetry      time.Duration `yaml:"portal_retry"`
	JoinAttempts     int           `yaml:"join_attempts"`
	JoinAttemptDelay time.Duration `yaml:"join_attempt_delay"`
}

// StoreConfig locates the credential store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AnnounceConfig controls mDNS registration and the LAN status endpoint
// while connected.
type AnnounceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Instance   string `yaml:"instance"`
	StatusPort int    `yaml:"status_port"`
}

// RestartConfig selects how the appliance restarts after a save. An empty
// command re-executes the running binary.
type RestartConfig struct {
	Command []string `yaml:"command,omitempty"`
}

// SimConfig configures the simulated radio.
type SimConfig struct {
	Networks    []SimNetwork  `yaml:"networks,omitempty"`
	JoinLatency time.Duration `yaml:"join_latency,omitempty"`
	Address     string        `yaml:"address,omitempty"`
}

// SimNetwork is one network the simulated radio can see.
type SimNetwork struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password,omitempty"`
	RSSI     int    `yaml:"rssi"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		AccessPoint: AccessPointConfig{
			SSID:    "Screenlink-Setup",
			Address: "192.168.4.1/24",
		},
		Portal: PortalConfig{
			HTTPPort: 80,
			DNSPort:  53,
		},
		Radio: RadioConfig{
			Driver:      DriverNMCLI,
			Interface:   "wlan0",
			SettleDelay: 500 * time.Millisecond,
		},
		Timing: TimingConfig{
			Tick:             100 * time.Millisecond,
			JoinTimeout:      20 * time.Second,
			PortalGrace:      15 * time.Second,
			InactivityWindow: 5 * time.Minute,
			RestartDelay:     5 * time.Second,
			PortalRetry:      5 * time.Second,
			JoinAttempts:     10,
			JoinAttemptDelay: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Path: "/var/lib/screenlink/settings.yaml",
		},
		Announce: AnnounceConfig{
			Enabled:    true,
			Instance:   "screenlink",
			StatusPort: 8080,
		},
		Sim: SimConfig{
			JoinLatency: 2 * time.Second,
			Address:     "192.168.1.77/24",
		},
	}
}

// UserConfigDir returns $XDG_CONFIG_HOME/screenlink or $HOME/.config/screenlink.
func UserConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultPath returns the system config path when it exists, otherwise the
// per-user path.
func DefaultPath() string {
	if _, err := os.Stat(SystemConfigPath); err == nil {
		return SystemConfigPath
	}
	dir, err := UserConfigDir()
	if err != nil {
		return SystemConfigPath
	}
	return filepath.Join(dir, configFile)
}

// Load reads the configuration at path, layered over Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", cfg.Version)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.AccessPoint.SSID == "" || len(c.AccessPoint.SSID) > 32 {
		return fmt.Errorf("access_point.ssid must be 1-32 characters")
	}
	if err := wifi.ValidatePassword(c.AccessPoint.Password); err != nil {
		return fmt.Errorf("access_point.password must be empty or 8-63 characters: %w", err)
	}
	if _, err := c.APPrefix(); err != nil {
		return err
	}
	switch c.Radio.Driver {
	case DriverNMCLI, DriverSimulator:
	default:
		return fmt.Errorf("radio.driver must be %q or %q, got %q", DriverNMCLI, DriverSimulator, c.Radio.Driver)
	}
	if c.Timing.Tick <= 0 {
		return fmt.Errorf("timing.tick must be positive")
	}
	if c.Timing.JoinAttempts < 0 {
		return fmt.Errorf("timing.join_attempts must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// APPrefix parses the access point address.
func (c *Config) APPrefix() (netip.Prefix, error) {
	p, err := netip.ParsePrefix(c.AccessPoint.Address)
	if err != nil || !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("access_point.address must be an IPv4 CIDR, got %q", c.AccessPoint.Address)
	}
	return p, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# screenlink configuration
# Durations use Go syntax (500ms, 20s, 5m).
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
