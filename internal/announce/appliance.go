package announce

import (
	"fmt"
	"strings"
	"time"
)

// Appliance is a screenlink instance found on the local network.
type Appliance struct {
	// Instance is the mDNS instance name (e.g. "screenlink-kitchen")
	Instance string

	// Hostname is the mDNS hostname (e.g. "raspberrypi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when one was advertised
	IP string

	// Port is the status endpoint port
	Port int

	// Metadata holds the TXT record pairs (ssid, version)
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable form of the appliance.
func (a *Appliance) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", a.Instance, a.Hostname, a.IP, a.Port)
}

// BaseURL returns the status endpoint base URL.
func (a *Appliance) BaseURL() string {
	host := a.IP
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, a.Port)
}

// GetMetadata returns a TXT value, or "" when absent.
func (a *Appliance) GetMetadata(key string) string {
	if a.Metadata == nil {
		return ""
	}
	return a.Metadata[key]
}
