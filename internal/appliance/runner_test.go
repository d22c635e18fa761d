package appliance

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/screenlink/internal/config"
	"github.com/muurk/screenlink/internal/radio"
	"github.com/muurk/screenlink/internal/reboot"
	"github.com/muurk/screenlink/internal/store"
	"github.com/muurk/screenlink/internal/supervisor"
	"github.com/muurk/screenlink/internal/wifi"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Radio.Driver = config.DriverSimulator
	cfg.Radio.SettleDelay = 0
	cfg.Portal = config.PortalConfig{ListenHost: "127.0.0.1"}
	cfg.Store.Path = filepath.Join(t.TempDir(), "settings.yaml")
	cfg.Announce.Enabled = false
	cfg.Timing = config.TimingConfig{
		Tick:             10 * time.Millisecond,
		JoinTimeout:      2 * time.Second,
		PortalGrace:      time.Minute,
		InactivityWindow: time.Minute,
		RestartDelay:     50 * time.Millisecond,
		PortalRetry:      100 * time.Millisecond,
		JoinAttempts:     3,
		JoinAttemptDelay: 10 * time.Millisecond,
	}
	cfg.Sim = config.SimConfig{
		Networks: []config.SimNetwork{{SSID: "home", Password: "secret", RSSI: -50}},
		Address:  "192.168.1.77/24",
	}
	return cfg
}

// start runs r in the background and returns a function that stops it and
// reports Run's error.
func start(t *testing.T, r *Runner) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func waitForState(t *testing.T, r *Runner, want supervisor.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.Supervisor().CurrentState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", r.Supervisor().CurrentState(), want)
}

func TestRunnerOpensPortalWithoutCredentials(t *testing.T) {
	r, err := New(testConfig(t), Options{Out: io.Discard})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.Simulator() == nil {
		t.Fatal("sim driver not selected")
	}
	stop := start(t, r)

	waitForState(t, r, supervisor.StatePortalActive)
	if !r.Simulator().AccessPointUp() {
		t.Error("access point not broadcasting")
	}

	resp, err := http.Get("http://" + r.Portal().HTTPAddr().String() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if r.Portal().Active() {
		t.Error("portal still active after shutdown")
	}
	if r.Simulator().AccessPointUp() {
		t.Error("access point still up after shutdown")
	}
}

func TestRunnerJoinsStoredNetwork(t *testing.T) {
	mem := store.NewMemory()
	if err := mem.SaveCredentials(wifi.Credentials{SSID: "home", Password: "secret", DHCP: true}); err != nil {
		t.Fatal(err)
	}

	r, err := New(testConfig(t), Options{Out: io.Discard, Store: mem})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := start(t, r)
	defer func() { _ = stop() }()

	waitForState(t, r, supervisor.StateConnected)
	snap := r.Supervisor().Snapshot()
	if snap.SSID != "home" {
		t.Errorf("SSID = %q, want home", snap.SSID)
	}
	if got := snap.IP.String(); got != "192.168.1.77" {
		t.Errorf("IP = %s, want 192.168.1.77", got)
	}
}

func TestRunnerSetupFlagOpensPortal(t *testing.T) {
	mem := store.NewMemory()
	if err := mem.SaveCredentials(wifi.Credentials{SSID: "home", Password: "secret", DHCP: true}); err != nil {
		t.Fatal(err)
	}

	r, err := New(testConfig(t), Options{Out: io.Discard, Store: mem, Setup: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := start(t, r)
	defer func() { _ = stop() }()

	waitForState(t, r, supervisor.StatePortalActive)
	if snap := r.Supervisor().Snapshot(); snap.Countdown <= 0 {
		t.Errorf("countdown = %v, want running with stored credentials", snap.Countdown)
	}
}

func TestRunnerSaveAppliesInPlace(t *testing.T) {
	r, err := New(testConfig(t), Options{Out: io.Discard})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := start(t, r)
	defer func() { _ = stop() }()

	waitForState(t, r, supervisor.StatePortalActive)

	form := url.Values{"ssid": {"home"}, "password": {"secret"}, "dhcp": {"1"}}
	resp, err := http.Post("http://"+r.Portal().HTTPAddr().String()+"/save",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("POST /save: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /save status = %d, want 200", resp.StatusCode)
	}

	// The simulated runner cannot restart, so the new settings are joined
	// directly.
	waitForState(t, r, supervisor.StateConnected)
}

func TestNewRestarter(t *testing.T) {
	cfg := config.Default()

	if _, ok := newRestarter(cfg, false).(*reboot.Exec); !ok {
		t.Error("default restarter is not Exec")
	}
	if _, ok := newRestarter(cfg, true).(reboot.Disabled); !ok {
		t.Error("simulated restarter is not Disabled")
	}

	cfg.Restart.Command = []string{"systemctl", "reboot"}
	c, ok := newRestarter(cfg, true).(*reboot.Command)
	if !ok {
		t.Fatal("configured command not used")
	}
	if strings.Join(c.Argv, " ") != "systemctl reboot" {
		t.Errorf("argv = %v", c.Argv)
	}
}

func TestNewSimulatorRejectsBadAddress(t *testing.T) {
	if _, err := newSimulator(config.SimConfig{Address: "not-an-address"}); err == nil {
		t.Error("newSimulator() accepted a bad address")
	}
	sim, err := newSimulator(config.SimConfig{
		Address:  "10.1.2.3/24",
		Networks: []config.SimNetwork{{SSID: "open", RSSI: -40}},
	})
	if err != nil {
		t.Fatalf("newSimulator() error = %v", err)
	}
	nets, _ := sim.Scan(context.Background())
	if len(nets) != 1 || nets[0].Secure {
		t.Errorf("networks = %+v, want one open network", nets)
	}
	var _ radio.Driver = sim
}

func TestSupervisorConfigFromTiming(t *testing.T) {
	cfg := testConfig(t)
	cfg.AccessPoint.SSID = "Lobby-Setup"
	sc := supervisorConfig(cfg)

	if sc.JoinTimeout != cfg.Timing.JoinTimeout || sc.RestartDelay != cfg.Timing.RestartDelay {
		t.Errorf("timings not copied: %+v", sc)
	}
	if sc.APName != "Lobby-Setup" {
		t.Errorf("APName = %q, want Lobby-Setup", sc.APName)
	}
	if sc.LinkCheck != supervisor.DefaultConfig().LinkCheck {
		t.Errorf("LinkCheck = %v, want default", sc.LinkCheck)
	}
}
