// Package config loads the appliance configuration.
//
// The configuration is a YAML file layered over built-in defaults, so an
// empty or missing file yields a working setup:
//
//	version: 1
//	access_point:
//	  ssid: Screenlink-Setup
//	  address: 192.168.4.1/24
//	radio:
//	  driver: nmcli
//	  interface: wlan0
//	timing:
//	  join_timeout: 20s
//	  portal_grace: 15s
//	  inactivity_window: 5m
//
// # Configuration File Location
//
//   - /etc/screenlink/config.yaml when present
//   - otherwise $XDG_CONFIG_HOME/screenlink/config.yaml or $HOME/.config/screenlink/config.yaml
//
// The --config flag overrides both.
//
// # Security
//
// WiFi credentials are NOT kept here; they live in the settings store
// (store.path), which is written with owner-only permissions.
package config
