package radio

import (
	"context"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/muurk/screenlink/internal/wifi"
)

func newTestController(sim *Simulator) *Controller {
	c := NewController(sim, 500*time.Millisecond)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

var testAP = AccessPoint{SSID: "Screenlink-Setup", Address: netip.MustParsePrefix("192.168.4.1/24")}

func TestController_ModeSequencing(t *testing.T) {
	sim := NewSimulator([]SimNetwork{{Network: wifi.Network{SSID: "home"}, Password: "password1"}}, 0, netip.MustParseAddr("10.0.0.5"))
	c := newTestController(sim)
	ctx := context.Background()

	if err := c.EnterAccessPoint(ctx, testAP); err != nil {
		t.Fatalf("EnterAccessPoint() error = %v", err)
	}
	if c.Mode() != ModeAccessPoint {
		t.Fatalf("Mode() = %v, want access_point", c.Mode())
	}
	// Idempotent.
	if err := c.EnterAccessPoint(ctx, testAP); err != nil {
		t.Fatalf("second EnterAccessPoint() error = %v", err)
	}

	if err := c.Join(ctx, JoinRequest{SSID: "home", Password: "password1"}); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if c.Mode() != ModeStation {
		t.Errorf("Mode() = %v, want station", c.Mode())
	}
	if sim.AccessPointUp() {
		t.Error("access point should be down after Join")
	}

	want := []string{"start_ap", "stop_ap", "join"}
	if !reflect.DeepEqual(sim.Calls, want) {
		t.Errorf("driver calls = %v, want %v", sim.Calls, want)
	}
}

func TestController_StopFailureBlocksNewMode(t *testing.T) {
	sim := NewSimulator(nil, 0, netip.Addr{})
	c := newTestController(sim)
	ctx := context.Background()

	if err := c.EnterAccessPoint(ctx, testAP); err != nil {
		t.Fatal(err)
	}
	sim.FailStopAP = true

	err := c.Join(ctx, JoinRequest{SSID: "home"})
	if err == nil {
		t.Fatal("Join() error = nil, want radio mode error")
	}
	if !wifi.IsRadioModeError(err) {
		t.Errorf("Join() error type = %T, want radio mode error", err)
	}
	if c.Mode() != ModeAccessPoint {
		t.Errorf("Mode() = %v, want access_point to remain", c.Mode())
	}
	for _, call := range sim.Calls {
		if call == "join" {
			t.Error("driver Join must not be called when the AP failed to stop")
		}
	}
}

func TestController_StartFailure(t *testing.T) {
	sim := NewSimulator(nil, 0, netip.Addr{})
	sim.FailStartAP = true
	c := newTestController(sim)

	err := c.EnterAccessPoint(context.Background(), testAP)
	if !wifi.IsRadioModeError(err) {
		t.Fatalf("EnterAccessPoint() error = %v, want radio mode error", err)
	}
	if c.Mode() != ModeOff {
		t.Errorf("Mode() = %v, want off", c.Mode())
	}
}

func TestController_LinkOutsideStation(t *testing.T) {
	sim := NewSimulator(nil, 0, netip.Addr{})
	c := newTestController(sim)

	link, err := c.Link(context.Background())
	if err != nil || link.Up {
		t.Errorf("Link() = %+v, %v; want down, nil", link, err)
	}
}

func TestController_Adopt(t *testing.T) {
	sim := NewSimulator([]SimNetwork{{Network: wifi.Network{SSID: "home"}}}, 0, netip.MustParseAddr("10.0.0.5"))
	ctx := context.Background()
	if err := sim.Join(ctx, JoinRequest{SSID: "home"}); err != nil {
		t.Fatal(err)
	}

	c := newTestController(sim)
	mode, err := c.Adopt(ctx)
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if mode != ModeStation {
		t.Errorf("Adopt() = %v, want station", mode)
	}
	link, _ := c.Link(ctx)
	if !link.Usable() {
		t.Errorf("Link() = %+v, want usable", link)
	}
}

func TestSimulator_JoinLatency(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sim := NewSimulator([]SimNetwork{
		{Network: wifi.Network{SSID: "home", Secure: true}, Password: "password1"},
	}, 2*time.Second, netip.MustParseAddr("10.0.0.5"))
	sim.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if err := sim.Join(ctx, JoinRequest{SSID: "home", Password: "password1"}); err != nil {
		t.Fatal(err)
	}
	if link, _ := sim.Link(ctx); link.Up {
		t.Error("link should not be up before latency elapses")
	}

	now = now.Add(2 * time.Second)
	link, _ := sim.Link(ctx)
	if !link.Up || link.Addr.String() != "10.0.0.5" {
		t.Errorf("Link() = %+v, want up at 10.0.0.5", link)
	}

	sim.DropLink()
	if link, _ := sim.Link(ctx); link.Up {
		t.Error("link should be down after DropLink")
	}
}

func TestSimulator_WrongPassword(t *testing.T) {
	sim := NewSimulator([]SimNetwork{
		{Network: wifi.Network{SSID: "home"}, Password: "password1"},
	}, 0, netip.MustParseAddr("10.0.0.5"))
	ctx := context.Background()

	_ = sim.Join(ctx, JoinRequest{SSID: "home", Password: "nope-nope"})
	if link, _ := sim.Link(ctx); link.Up {
		t.Error("wrong password must never link")
	}
}

func TestSimulator_StaticAddress(t *testing.T) {
	sim := NewSimulator([]SimNetwork{{Network: wifi.Network{SSID: "home"}}}, 0, netip.MustParseAddr("10.0.0.5"))
	ctx := context.Background()

	static := &wifi.StaticConfig{Addr: netip.MustParsePrefix("10.0.0.77/24")}
	_ = sim.Join(ctx, JoinRequest{SSID: "home", Static: static})
	link, _ := sim.Link(ctx)
	if link.Addr.String() != "10.0.0.77" {
		t.Errorf("Link().Addr = %v, want 10.0.0.77", link.Addr)
	}
}

func TestParseDeviceShow(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		wantUp bool
		wantIP string
	}{
		{
			name:   "station connected",
			out:    "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:screenlink-sta\nIP4.ADDRESS[1]:192.168.1.50/24\n",
			wantUp: true,
			wantIP: "192.168.1.50",
		},
		{
			name:   "access point active does not count",
			out:    "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:screenlink-ap\nIP4.ADDRESS[1]:192.168.4.1/24\n",
			wantUp: false,
		},
		{
			name:   "connecting",
			out:    "GENERAL.STATE:70 (connecting (getting IP configuration))\nGENERAL.CONNECTION:screenlink-sta\n",
			wantUp: false,
		},
		{
			name:   "disconnected",
			out:    "GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:\n",
			wantUp: false,
		},
		{
			name:   "connected without address",
			out:    "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:Home WiFi\n",
			wantUp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := ParseDeviceShow([]byte(tt.out))
			if link.Up != tt.wantUp {
				t.Errorf("Up = %v, want %v", link.Up, tt.wantUp)
			}
			if tt.wantIP != "" && link.Addr.String() != tt.wantIP {
				t.Errorf("Addr = %v, want %v", link.Addr, tt.wantIP)
			}
		})
	}
}

func TestParseWifiList(t *testing.T) {
	out := "home:80:WPA2\nCafe\\:Guest:40:\nhidden-bad:xx:WPA2\n:30:WPA1 WPA2\nopen-net:100:--\n"

	got := ParseWifiList([]byte(out))
	want := []wifi.Network{
		{SSID: "home", RSSI: -60, Secure: true},
		{SSID: "Cafe:Guest", RSSI: -80, Secure: false},
		{SSID: "", RSSI: -85, Secure: true},
		{SSID: "open-net", RSSI: -50, Secure: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseWifiList() = %+v, want %+v", got, want)
	}
}

type recordingRunner struct {
	calls [][]string
	fail  map[string]error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	key := strings.Join(args, " ")
	for prefix, err := range r.fail {
		if strings.HasPrefix(key, prefix) {
			return []byte(err.Error()), err
		}
	}
	return nil, nil
}

func TestNMCLI_JoinStaticArgs(t *testing.T) {
	r := &recordingRunner{}
	n := &NMCLI{Interface: "wlan0", Run: r.run}

	static := &wifi.StaticConfig{
		Addr:    netip.MustParsePrefix("192.168.1.50/24"),
		Gateway: netip.MustParseAddr("192.168.1.1"),
		DNS:     []netip.Addr{netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("8.8.8.8")},
	}
	if err := n.Join(context.Background(), JoinRequest{SSID: "home", Password: "password1", Static: static}); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	if len(r.calls) != 3 {
		t.Fatalf("got %d nmcli calls, want 3 (delete, add, up)", len(r.calls))
	}
	add := strings.Join(r.calls[1], " ")
	for _, want := range []string{
		"con-name screenlink-sta",
		"ssid home",
		"wifi-sec.psk password1",
		"ipv4.method manual",
		"ipv4.addresses 192.168.1.50/24",
		"ipv4.gateway 192.168.1.1",
		"ipv4.dns 1.1.1.1,8.8.8.8",
	} {
		if !strings.Contains(add, want) {
			t.Errorf("add args %q missing %q", add, want)
		}
	}
	up := strings.Join(r.calls[2], " ")
	if up != "nmcli --wait 0 connection up screenlink-sta" {
		t.Errorf("up call = %q", up)
	}
}

func TestNMCLI_StopAccessPointNotActive(t *testing.T) {
	r := &recordingRunner{fail: map[string]error{
		"connection down": errors.New("Error: 'screenlink-ap' is not an active connection."),
	}}
	n := &NMCLI{Interface: "wlan0", Run: r.run}

	if err := n.StopAccessPoint(context.Background()); err != nil {
		t.Errorf("StopAccessPoint() error = %v, want nil for inactive profile", err)
	}
}

func TestNMCLI_StartAccessPointFailure(t *testing.T) {
	r := &recordingRunner{fail: map[string]error{
		"connection up": errors.New("Error: Connection activation failed"),
	}}
	n := &NMCLI{Interface: "wlan0", Run: r.run}

	err := n.StartAccessPoint(context.Background(), testAP)
	if err == nil || !strings.Contains(err.Error(), "activate access point") {
		t.Errorf("StartAccessPoint() error = %v", err)
	}
}
