package wifi

import (
	"fmt"
	"net/netip"
)

// Credentials is a persisted WiFi configuration. A zero value means "not
// configured"; SSID must be non-empty for the value to be usable.
type Credentials struct {
	SSID     string `yaml:"ssid" json:"ssid"`
	Password string `yaml:"password,omitempty" json:"-"`
	DHCP     bool   `yaml:"dhcp" json:"dhcp"`

	// Static addressing, only meaningful when DHCP is false.
	IP      string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Gateway string `yaml:"gateway,omitempty" json:"gateway,omitempty"`
	Subnet  string `yaml:"subnet,omitempty" json:"subnet,omitempty"`
	DNS1    string `yaml:"dns1,omitempty" json:"dns1,omitempty"`
	DNS2    string `yaml:"dns2,omitempty" json:"dns2,omitempty"`
}

// IsValid reports whether the credentials can be used for a join attempt.
func (c Credentials) IsValid() bool {
	return c.SSID != ""
}

// Secured reports whether a passphrase is configured.
func (c Credentials) Secured() bool {
	return c.Password != ""
}

// String returns a log-safe summary. The password is never included.
func (c Credentials) String() string {
	if c.DHCP {
		return fmt.Sprintf("ssid=%q dhcp", c.SSID)
	}
	return fmt.Sprintf("ssid=%q static=%s gw=%s mask=%s", c.SSID, c.IP, c.Gateway, c.Subnet)
}

// StaticConfig is the parsed form of the static addressing fields.
type StaticConfig struct {
	Addr    netip.Prefix
	Gateway netip.Addr
	DNS     []netip.Addr
}

// DisplaySettings holds the user's display preferences. They are stored next
// to the credentials and edited from the same portal form.
type DisplaySettings struct {
	BattleRomaji    bool `yaml:"battle_romaji" json:"battle_romaji"`
	RuleRomaji      bool `yaml:"rule_romaji" json:"rule_romaji"`
	StageRomaji     bool `yaml:"stage_romaji" json:"stage_romaji"`
	InvertedDisplay bool `yaml:"inverted_display" json:"inverted_display"`
}

// Network is one access point seen during a scan.
type Network struct {
	SSID   string `json:"ssid"`
	RSSI   int    `json:"rssi"`
	Secure bool   `json:"secure"`
}

// SignalLevel buckets RSSI (dBm) into 1..4 bars.
func (n Network) SignalLevel() int {
	switch {
	case n.RSSI >= -55:
		return 4
	case n.RSSI >= -66:
		return 3
	case n.RSSI >= -77:
		return 2
	default:
		return 1
	}
}

// Link describes the station interface as reported by the radio.
type Link struct {
	Up   bool
	Addr netip.Addr
}

// Usable reports whether the link is associated and has an address.
func (l Link) Usable() bool {
	return l.Up && l.Addr.IsValid()
}
