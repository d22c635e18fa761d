package radio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"

	"github.com/muurk/screenlink/internal/wifi"
)

// NetworkManager connection profile names owned by screenlink.
const (
	APConnection      = "screenlink-ap"
	StationConnection = "screenlink-sta"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// NMCLI drives a NetworkManager-managed interface through the nmcli tool.
//
// Access point mode uses ipv4.method shared, which makes NetworkManager run
// dnsmasq for DHCP. Its DNS listener must be disabled (port=0 in
// /etc/NetworkManager/dnsmasq-shared.d/) so the portal's resolver can bind
// port 53.
type NMCLI struct {
	Interface string
	Run       Runner
}

// NewNMCLI returns a driver for iface using ExecRunner.
func NewNMCLI(iface string) *NMCLI {
	return &NMCLI{Interface: iface, Run: ExecRunner}
}

func (n *NMCLI) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	return n.Run(ctx, "nmcli", args...)
}

// StartAccessPoint implements Driver.
func (n *NMCLI) StartAccessPoint(ctx context.Context, ap AccessPoint) error {
	// A stale profile from a previous run is replaced, not reused.
	_, _ = n.nmcli(ctx, "connection", "delete", APConnection)

	args := []string{
		"connection", "add", "type", "wifi",
		"ifname", n.Interface,
		"con-name", APConnection,
		"autoconnect", "no",
		"ssid", ap.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"ipv4.method", "shared",
		"ipv4.addresses", ap.Address.String(),
		"ipv6.method", "disabled",
	}
	if ap.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", ap.Password)
	}
	if _, err := n.nmcli(ctx, args...); err != nil {
		return fmt.Errorf("create access point profile: %w", err)
	}
	if _, err := n.nmcli(ctx, "connection", "up", APConnection); err != nil {
		return fmt.Errorf("activate access point: %w", err)
	}
	return nil
}

// StopAccessPoint implements Driver.
func (n *NMCLI) StopAccessPoint(ctx context.Context) error {
	out, err := n.nmcli(ctx, "connection", "down", APConnection)
	if err != nil && !notActive(out, err) {
		return fmt.Errorf("deactivate access point: %w", err)
	}
	return nil
}

// Join implements Driver. The profile is activated with --wait 0 so the call
// returns as soon as NetworkManager has accepted it.
func (n *NMCLI) Join(ctx context.Context, req JoinRequest) error {
	_, _ = n.nmcli(ctx, "connection", "delete", StationConnection)

	args := []string{
		"connection", "add", "type", "wifi",
		"ifname", n.Interface,
		"con-name", StationConnection,
		"autoconnect", "yes",
		"ssid", req.SSID,
		"ipv6.method", "disabled",
	}
	if req.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", req.Password)
	}
	args = append(args, ipv4Args(req.Static)...)

	if _, err := n.nmcli(ctx, args...); err != nil {
		return fmt.Errorf("create station profile: %w", err)
	}
	if _, err := n.nmcli(ctx, "--wait", "0", "connection", "up", StationConnection); err != nil {
		return fmt.Errorf("activate station profile: %w", err)
	}
	return nil
}

func ipv4Args(static *wifi.StaticConfig) []string {
	if static == nil {
		return []string{"ipv4.method", "auto"}
	}
	args := []string{
		"ipv4.method", "manual",
		"ipv4.addresses", static.Addr.String(),
		"ipv4.gateway", static.Gateway.String(),
	}
	if len(static.DNS) > 0 {
		dns := make([]string, len(static.DNS))
		for i, d := range static.DNS {
			dns[i] = d.String()
		}
		args = append(args, "ipv4.dns", strings.Join(dns, ","))
	}
	return args
}

// Disconnect implements Driver.
func (n *NMCLI) Disconnect(ctx context.Context) error {
	out, err := n.nmcli(ctx, "device", "disconnect", n.Interface)
	if err != nil && !notActive(out, err) {
		return fmt.Errorf("disconnect %s: %w", n.Interface, err)
	}
	return nil
}

// Link implements Driver.
func (n *NMCLI) Link(ctx context.Context) (wifi.Link, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "device", "show", n.Interface)
	if err != nil {
		return wifi.Link{}, fmt.Errorf("query %s: %w", n.Interface, err)
	}
	return ParseDeviceShow(out), nil
}

// Scan implements Driver.
func (n *NMCLI) Scan(ctx context.Context) ([]wifi.Network, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list", "ifname", n.Interface, "--rescan", "auto")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", n.Interface, err)
	}
	return ParseWifiList(out), nil
}

func notActive(out []byte, err error) bool {
	msg := strings.ToLower(string(out) + " " + err.Error())
	return strings.Contains(msg, "not an active") ||
		strings.Contains(msg, "not active") ||
		strings.Contains(msg, "unknown connection") ||
		strings.Contains(msg, "is not connected")
}

// ParseDeviceShow parses terse `nmcli device show` output. The link is up
// only when the device is activated on the station profile; an active access
// point does not count.
func ParseDeviceShow(out []byte) wifi.Link {
	var (
		state int
		conn  string
		addr  netip.Addr
	)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			code, _, _ := strings.Cut(value, " ")
			state, _ = strconv.Atoi(code)
		case key == "GENERAL.CONNECTION":
			conn = value
		case strings.HasPrefix(key, "IP4.ADDRESS") && !addr.IsValid():
			if p, err := netip.ParsePrefix(value); err == nil {
				addr = p.Addr()
			}
		}
	}

	const activated = 100
	if state != activated || conn == "" || conn == APConnection {
		return wifi.Link{}
	}
	return wifi.Link{Up: true, Addr: addr}
}

// ParseWifiList parses terse `nmcli device wifi list -f SSID,SIGNAL,SECURITY`
// output. SIGNAL is a 0-100 quality figure, converted to dBm as q/2 - 100.
func ParseWifiList(out []byte) []wifi.Network {
	var nets []wifi.Network

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := splitTerse(sc.Text())
		if len(fields) < 3 {
			continue
		}
		quality, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		security := strings.TrimSpace(fields[2])
		nets = append(nets, wifi.Network{
			SSID:   fields[0],
			RSSI:   quality/2 - 100,
			Secure: security != "" && security != "--",
		})
	}
	return nets
}

// splitTerse splits a terse nmcli line on unescaped colons.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}
