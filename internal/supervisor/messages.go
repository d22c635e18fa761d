package supervisor

import (
	"fmt"
	"net/netip"
)

// Status text shown on the display. Lines are separated by "\n".
const (
	linkLostMessage    = "Connection lost\nReconnecting..."
	unavailableMessage = "Setup unavailable\nRetrying..."
	restartingMessage  = "Restarting..."
)

func waitingMessage(apName string, ip netip.Addr) string {
	return fmt.Sprintf("WiFi Setup Mode\nSSID: %s\nIP: %s\nWaiting for setup...", apName, ip)
}

func countdownMessage(apName string, ip netip.Addr, seconds int) string {
	return fmt.Sprintf("WiFi Setup Mode\nSSID: %s\nIP: %s\nConnecting in %ds...", apName, ip, seconds)
}

func progressMessage(apName string, ip netip.Addr) string {
	return fmt.Sprintf("WiFi Setup in Progress\nSSID: %s\nIP: %s\nConfiguration in progress...", apName, ip)
}

func joiningMessage(ssid string) string {
	return fmt.Sprintf("Connecting to WiFi\nSSID: %s\nPlease wait...", ssid)
}

func connectedMessage(ssid string, ip netip.Addr) string {
	return fmt.Sprintf("Connection OK\nSSID: %s\nIP: %s", ssid, ip)
}
