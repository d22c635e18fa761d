package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/muurk/screenlink/internal/store"
	"github.com/muurk/screenlink/internal/wifi"
)

const tick = 100 * time.Millisecond

type fakeStation struct {
	now *time.Time

	reachable  bool
	delay      time.Duration
	connectErr error
	up         bool // link up regardless of joins
	ip         netip.Addr

	joined      bool
	joinedAt    time.Time
	connects    []wifi.Credentials
	disconnects int
}

func (f *fakeStation) Connect(_ context.Context, c wifi.Credentials) error {
	f.connects = append(f.connects, c)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.joined, f.joinedAt = true, *f.now
	return nil
}

func (f *fakeStation) IsLinked(context.Context) bool {
	if f.up {
		return true
	}
	return f.joined && f.reachable && !f.now.Before(f.joinedAt.Add(f.delay))
}

func (f *fakeStation) IPAddress() (netip.Addr, bool) {
	if !f.IsLinked(context.Background()) {
		return netip.Addr{}, false
	}
	return f.ip, true
}

func (f *fakeStation) Disconnect(context.Context) error {
	f.disconnects++
	f.joined, f.up = false, false
	return nil
}

type fakePortal struct {
	active   bool
	startErr error
	starts   int
	stops    int
	polls    int

	activity bool
	pending  bool
	last     time.Time
	onPoll   func(now time.Time)
}

func (p *fakePortal) Start(context.Context, string, string) error {
	p.starts++
	if p.startErr != nil {
		return p.startErr
	}
	if !p.active {
		p.active, p.activity, p.pending = true, false, false
	}
	return nil
}

func (p *fakePortal) Stop(context.Context) error {
	if p.active {
		p.stops++
	}
	p.active, p.activity, p.pending = false, false, false
	return nil
}

func (p *fakePortal) Poll(now time.Time) {
	p.polls++
	if p.pending {
		p.last, p.pending = now, false
	}
	if p.onPoll != nil {
		p.onPoll(now)
	}
}

func (p *fakePortal) Active() bool            { return p.active }
func (p *fakePortal) HasActivity() bool       { return p.activity }
func (p *fakePortal) LastActivity() time.Time { return p.last }
func (p *fakePortal) ResetActivity()          { p.activity = false }
func (p *fakePortal) Address() netip.Addr     { return netip.MustParseAddr("192.168.4.1") }

// hit simulates a request to any portal endpoint.
func (p *fakePortal) hit() {
	p.activity, p.pending = true, true
}

type call struct {
	kind      string
	connected bool
	message   string
}

type recordingPresenter struct {
	calls []call
}

func (r *recordingPresenter) ShowConnectionStatus(connected bool, message string) {
	r.calls = append(r.calls, call{"status", connected, message})
}

func (r *recordingPresenter) ShowLoadingMessage(message string) {
	r.calls = append(r.calls, call{"loading", false, message})
}

func (r *recordingPresenter) ResetDisplayState() {
	r.calls = append(r.calls, call{kind: "reset"})
}

func (r *recordingPresenter) last() call {
	if len(r.calls) == 0 {
		return call{}
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingPresenter) count(kind, substr string) int {
	n := 0
	for _, c := range r.calls {
		if c.kind == kind && strings.Contains(c.message, substr) {
			n++
		}
	}
	return n
}

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart() error {
	f.calls++
	return f.err
}

type harness struct {
	t   *testing.T
	ctx context.Context
	now time.Time

	cfg         Config
	sup         *Supervisor
	station     *fakeStation
	portal      *fakePortal
	store       *store.Memory
	presenter   *recordingPresenter
	restarter   *fakeRestarter
	transitions []Transition
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LinkCheck = 0
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		now:       time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		cfg:       testConfig(),
		portal:    &fakePortal{},
		store:     store.NewMemory(),
		presenter: &recordingPresenter{},
		restarter: &fakeRestarter{},
	}
	h.station = &fakeStation{now: &h.now, reachable: true, delay: 2 * time.Second, ip: netip.MustParseAddr("10.0.0.5")}
	h.build()
	return h
}

func (h *harness) build() {
	h.sup = New(h.cfg, Deps{
		Station:     h.station,
		Portal:      h.portal,
		Credentials: h.store,
		Presenter:   h.presenter,
		Restarter:   h.restarter,
	})
	h.sup.OnTransition(func(tr Transition) { h.transitions = append(h.transitions, tr) })
}

func (h *harness) saveCreds() {
	h.t.Helper()
	if err := h.store.SaveCredentials(wifi.Credentials{SSID: "home", Password: "secret123", DHCP: true}); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) tick() {
	h.now = h.now.Add(tick)
	h.sup.Tick(h.ctx, h.now)
}

func (h *harness) run(d time.Duration) {
	end := h.now.Add(d)
	for h.now.Before(end) {
		h.tick()
	}
}

// runUntil ticks until the supervisor reaches want or limit passes.
func (h *harness) runUntil(want State, limit time.Duration) time.Time {
	h.t.Helper()
	end := h.now.Add(limit)
	for h.now.Before(end) {
		h.tick()
		if h.sup.CurrentState() == want {
			return h.now
		}
	}
	h.t.Fatalf("state %v not reached within %v (now %v)", want, limit, h.sup.CurrentState())
	return time.Time{}
}

func (h *harness) states() []State {
	out := make([]State, len(h.transitions))
	for i, tr := range h.transitions {
		out[i] = tr.To
	}
	return out
}

func statesEqual(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestColdBootWithoutCredentials(t *testing.T) {
	h := newHarness(t)

	h.tick()
	if got := h.states(); !statesEqual(got, []State{StatePortalActive}) {
		t.Fatalf("states = %v, want [portal_active]", got)
	}
	if h.sup.Snapshot().Countdown != 0 {
		t.Errorf("countdown = %v, want none without credentials", h.sup.Snapshot().Countdown)
	}
	if !strings.Contains(h.presenter.last().message, "Waiting for setup...") {
		t.Errorf("message = %q", h.presenter.last().message)
	}

	h.run(10 * time.Minute)
	if h.sup.CurrentState() != StatePortalActive {
		t.Errorf("state = %v after idle portal, want portal_active", h.sup.CurrentState())
	}
	if len(h.station.connects) != 0 {
		t.Errorf("station joined %d times without credentials", len(h.station.connects))
	}
	if h.portal.starts != 1 {
		t.Errorf("portal started %d times, want 1", h.portal.starts)
	}
}

func TestBootWithReachableNetwork(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()

	h.run(5 * time.Second)

	want := []State{StateConnecting, StateConnected}
	if got := h.states(); !statesEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if h.portal.starts != 0 {
		t.Errorf("portal started %d times, want 0", h.portal.starts)
	}
	joined := h.transitions[1].At.Sub(h.transitions[0].At)
	if joined >= h.cfg.JoinTimeout {
		t.Errorf("connected after %v, want within %v", joined, h.cfg.JoinTimeout)
	}

	n := len(h.presenter.calls)
	if n < 2 || h.presenter.calls[n-2].kind != "reset" {
		t.Errorf("display not reset before connected status: %+v", h.presenter.calls)
	}
	last := h.presenter.last()
	if !last.connected || last.message != "Connection OK\nSSID: home\nIP: 10.0.0.5" {
		t.Errorf("last status = %+v", last)
	}

	snap := h.sup.Snapshot()
	if snap.State != StateConnected || snap.SSID != "home" || snap.IP.String() != "10.0.0.5" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestJoinTimeoutBoundary(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.reachable = false

	h.tick()
	if h.sup.CurrentState() != StateConnecting {
		t.Fatalf("state = %v, want connecting", h.sup.CurrentState())
	}
	start := h.now

	at := h.runUntil(StatePortalActive, time.Minute)
	elapsed := at.Sub(start)
	if elapsed < h.cfg.JoinTimeout {
		t.Errorf("left connecting after %v, before the %v timeout", elapsed, h.cfg.JoinTimeout)
	}
	if elapsed > h.cfg.JoinTimeout+tick {
		t.Errorf("left connecting after %v, more than one tick past %v", elapsed, h.cfg.JoinTimeout)
	}
	if got := h.sup.Snapshot().Countdown; got != h.cfg.PortalGrace {
		t.Errorf("countdown = %v, want %v", got, h.cfg.PortalGrace)
	}
}

func TestJoinRadioErrorDegradesToPortal(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.connectErr = wifi.NewRadioModeError("join", errors.New("device busy"))

	h.tick()
	h.tick()

	want := []State{StateConnecting, StatePortalActive}
	if got := h.states(); !statesEqual(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestSetupSessionSuppressesCountdown(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.reachable = false
	h.runUntil(StatePortalActive, time.Minute)

	h.run(5 * time.Second)
	h.portal.hit()
	h.tick()
	if h.sup.CurrentState() != StatePortalWithConnection {
		t.Fatalf("state = %v, want portal_with_connection", h.sup.CurrentState())
	}
	if !strings.Contains(h.presenter.last().message, "Configuration in progress...") {
		t.Errorf("message = %q", h.presenter.last().message)
	}

	// Keep interacting for three minutes, well past the grace period.
	for i := 0; i < 6; i++ {
		h.run(30 * time.Second)
		h.portal.hit()
		h.tick()
		if h.sup.CurrentState() != StatePortalWithConnection {
			t.Fatalf("state = %v during session, want portal_with_connection", h.sup.CurrentState())
		}
		if h.sup.Snapshot().Countdown != 0 {
			t.Fatalf("countdown running during session: %v", h.sup.Snapshot().Countdown)
		}
	}
	lastActivity := h.portal.last

	exit := h.runUntil(StatePortalActive, 10*time.Minute)
	if want := lastActivity.Add(h.cfg.InactivityWindow); !exit.Equal(want) {
		t.Errorf("session ended at %v, want %v", exit, want)
	}
	if h.portal.activity {
		t.Error("activity flag not reset when the session ended")
	}
	if got := h.sup.Snapshot().Countdown; got != h.cfg.PortalGrace {
		t.Errorf("countdown after session = %v, want full %v", got, h.cfg.PortalGrace)
	}

	joinAt := h.runUntil(StateConnecting, time.Minute)
	if got := joinAt.Sub(exit); got != h.cfg.PortalGrace {
		t.Errorf("countdown ran %v, want %v", got, h.cfg.PortalGrace)
	}
}

func TestActivityWinsOverExpiry(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.reachable = false
	enter := h.runUntil(StatePortalActive, time.Minute)

	for h.now.Before(enter.Add(h.cfg.PortalGrace - tick)) {
		h.tick()
	}
	if h.sup.CurrentState() != StatePortalActive {
		t.Fatalf("state = %v before expiry", h.sup.CurrentState())
	}

	h.portal.hit()
	h.tick() // countdown expires on this tick
	if h.sup.CurrentState() != StatePortalWithConnection {
		t.Errorf("state = %v, want portal_with_connection", h.sup.CurrentState())
	}
}

func TestCountdownRedrawnPerSecond(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.reachable = false
	h.runUntil(StatePortalActive, time.Minute)
	before := len(h.presenter.calls)

	h.runUntil(StateConnecting, time.Minute)

	var shown []string
	for _, c := range h.presenter.calls[before-1:] {
		if strings.Contains(c.message, "Connecting in") {
			shown = append(shown, c.message[strings.LastIndex(c.message, "\n")+1:])
		}
	}
	if len(shown) != 16 {
		t.Fatalf("countdown drawn %d times, want 16: %v", len(shown), shown)
	}
	if shown[0] != "Connecting in 15s..." || shown[15] != "Connecting in 0s..." {
		t.Errorf("countdown ran %q to %q", shown[0], shown[15])
	}
	for i := 1; i < len(shown); i++ {
		if shown[i] == shown[i-1] {
			t.Errorf("countdown redrawn with unchanged value %q", shown[i])
		}
	}
}

func TestLinkUpWhilePortalIdle(t *testing.T) {
	h := newHarness(t)
	h.tick()

	h.station.up = true
	h.tick()
	if h.sup.CurrentState() != StateConnected {
		t.Fatalf("state = %v, want connected", h.sup.CurrentState())
	}
	if h.portal.active {
		t.Error("portal still active after connecting")
	}
}

func TestLinkUpIgnoredDuringSession(t *testing.T) {
	h := newHarness(t)
	h.tick()
	h.portal.hit()
	h.tick()

	h.station.up = true
	h.run(time.Minute)
	if h.sup.CurrentState() != StatePortalWithConnection {
		t.Errorf("state = %v, want portal_with_connection while user is active", h.sup.CurrentState())
	}
}

func TestAutoconnectedAtBoot(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.station.up = true

	h.tick()
	if got := h.states(); !statesEqual(got, []State{StateConnected}) {
		t.Errorf("states = %v, want [connected]", got)
	}
	if len(h.station.connects) != 0 {
		t.Error("joined although the link was already up")
	}
}

func TestLinkLossReconnects(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.runUntil(StateConnected, time.Minute)

	h.station.reachable = false
	h.tick()
	if h.sup.CurrentState() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", h.sup.CurrentState())
	}
	if h.presenter.last().message != "Connection lost\nReconnecting..." {
		t.Errorf("message = %q", h.presenter.last().message)
	}

	h.tick()
	if h.sup.CurrentState() != StateConnecting {
		t.Errorf("state = %v, want connecting", h.sup.CurrentState())
	}
	h.station.reachable = true
	h.runUntil(StateConnected, time.Minute)
}

func TestPortalStartFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.portal.startErr = wifi.NewRadioModeError("enter access point", errors.New("no ap support"))

	h.tick()
	if h.sup.CurrentState() != StatePortalActive {
		t.Fatalf("state = %v, want portal_active", h.sup.CurrentState())
	}
	if h.presenter.last().message != "Setup unavailable\nRetrying..." {
		t.Errorf("message = %q", h.presenter.last().message)
	}

	h.run(h.cfg.PortalRetry - tick)
	if h.portal.starts != 1 {
		t.Errorf("portal start retried early: %d starts", h.portal.starts)
	}

	h.portal.startErr = nil
	h.tick()
	if h.portal.starts != 2 || !h.portal.active {
		t.Errorf("portal not restarted after retry delay: starts=%d", h.portal.starts)
	}
	if !strings.Contains(h.presenter.last().message, "WiFi Setup Mode") {
		t.Errorf("message = %q", h.presenter.last().message)
	}
}

func TestRestartAfterSave(t *testing.T) {
	h := newHarness(t)
	h.tick()
	h.portal.hit()
	h.tick()

	h.saveCreds()
	h.sup.NotifyCredentialsSaved(h.now)

	h.run(h.cfg.RestartDelay - 2*tick)
	if !h.sup.Snapshot().RestartPending {
		t.Error("restart not pending")
	}
	if h.restarter.calls != 0 {
		t.Fatalf("restarted early")
	}

	h.run(2 * tick)
	if h.restarter.calls != 1 {
		t.Fatalf("restart calls = %d, want 1", h.restarter.calls)
	}
	if h.portal.active {
		t.Error("portal still active at restart")
	}
	if h.station.disconnects == 0 {
		t.Error("station not disconnected at restart")
	}
	if got := h.presenter.count("loading", "Restarting..."); got != 1 {
		t.Errorf("restart message shown %d times, want 1", got)
	}

	h.run(time.Minute)
	if h.restarter.calls != 1 {
		t.Errorf("restart calls = %d after restart, want 1", h.restarter.calls)
	}
}

func TestRestartFailureAppliesInPlace(t *testing.T) {
	h := newHarness(t)
	h.restarter.err = errors.New("exec failed")
	h.tick()

	h.saveCreds()
	h.sup.NotifyCredentialsSaved(h.now)
	h.run(h.cfg.RestartDelay)
	if h.restarter.calls != 1 {
		t.Fatalf("restart calls = %d, want 1", h.restarter.calls)
	}
	if h.sup.CurrentState() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", h.sup.CurrentState())
	}

	h.runUntil(StateConnected, time.Minute)
	if h.restarter.calls != 1 {
		t.Errorf("restart calls = %d, want 1", h.restarter.calls)
	}
}

func TestSaveDeliveredThroughPoll(t *testing.T) {
	h := newHarness(t)
	saveNext := false
	h.portal.onPoll = func(now time.Time) {
		if saveNext {
			saveNext = false
			h.sup.NotifyCredentialsSaved(now)
		}
	}
	h.tick()

	h.saveCreds()
	saveNext = true
	h.tick()
	if !h.sup.Snapshot().RestartPending {
		t.Error("restart not pending after save delivered in Poll")
	}
}

func TestRequestPortal(t *testing.T) {
	t.Run("from connected", func(t *testing.T) {
		h := newHarness(t)
		h.saveCreds()
		h.runUntil(StateConnected, time.Minute)

		h.sup.RequestPortal()
		h.tick()
		if h.sup.CurrentState() != StatePortalActive {
			t.Fatalf("state = %v, want portal_active", h.sup.CurrentState())
		}
		if !h.portal.active {
			t.Error("portal not started")
		}
	})

	t.Run("from connecting", func(t *testing.T) {
		h := newHarness(t)
		h.saveCreds()
		h.station.reachable = false
		h.tick()

		h.sup.RequestPortal()
		h.tick()
		if h.sup.CurrentState() != StatePortalActive {
			t.Errorf("state = %v, want portal_active", h.sup.CurrentState())
		}
	})

	t.Run("from portal active restarts countdown", func(t *testing.T) {
		h := newHarness(t)
		h.saveCreds()
		h.station.reachable = false
		h.runUntil(StatePortalActive, time.Minute)
		h.run(10 * time.Second)

		h.sup.RequestPortal()
		h.tick()
		if h.sup.CurrentState() != StatePortalActive {
			t.Fatalf("state = %v, want portal_active", h.sup.CurrentState())
		}
		if got := h.sup.Snapshot().Countdown; got != h.cfg.PortalGrace {
			t.Errorf("countdown = %v, want %v", got, h.cfg.PortalGrace)
		}
		if h.portal.starts != 1 {
			t.Errorf("portal started %d times, want 1", h.portal.starts)
		}
	})

	t.Run("from session resets activity", func(t *testing.T) {
		h := newHarness(t)
		h.saveCreds()
		h.station.reachable = false
		h.runUntil(StatePortalActive, time.Minute)
		h.portal.hit()
		h.tick()

		h.sup.RequestPortal()
		h.tick()
		if h.sup.CurrentState() != StatePortalActive {
			t.Fatalf("state = %v, want portal_active", h.sup.CurrentState())
		}
		if h.portal.activity {
			t.Error("activity not reset")
		}
		if got := h.sup.Snapshot().Countdown; got != h.cfg.PortalGrace {
			t.Errorf("countdown = %v, want %v", got, h.cfg.PortalGrace)
		}
	})
}

func TestTickIgnoresStaleTime(t *testing.T) {
	h := newHarness(t)
	h.tick()
	calls, polls := len(h.presenter.calls), h.portal.polls

	h.sup.Tick(h.ctx, h.now)
	h.sup.Tick(h.ctx, h.now.Add(-time.Second))
	if len(h.presenter.calls) != calls || h.portal.polls != polls {
		t.Error("tick with non-increasing time had effects")
	}
}

func TestPollEveryTick(t *testing.T) {
	h := newHarness(t)
	h.saveCreds()
	h.run(time.Minute)
	if h.portal.polls != 600 {
		t.Errorf("Poll called %d times over 600 ticks", h.portal.polls)
	}
}

func TestLinkCheckRateLimited(t *testing.T) {
	h := newHarness(t)
	h.cfg.LinkCheck = time.Second
	h.build()
	h.saveCreds()

	h.run(time.Minute)
	if h.sup.CurrentState() != StateConnected {
		t.Fatalf("state = %v, want connected", h.sup.CurrentState())
	}
	h.station.reachable = false
	h.run(h.cfg.LinkCheck)
	if h.sup.CurrentState() != StateDisconnected && h.sup.CurrentState() != StateConnecting {
		t.Errorf("link loss not noticed within %v: %v", h.cfg.LinkCheck, h.sup.CurrentState())
	}
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(t)
		if rng.Intn(2) == 0 {
			h.saveCreds()
		}

		for step := 0; step < 3000; step++ {
			switch r := rng.Intn(100); {
			case r < 5 && h.portal.active:
				h.portal.hit()
			case r < 7:
				h.station.reachable = !h.station.reachable
			case r < 8:
				h.sup.RequestPortal()
			case r < 9:
				h.station.up = rng.Intn(4) == 0
			}

			hadActivity := h.portal.activity
			before := len(h.transitions)
			h.now = h.now.Add(time.Duration(1+rng.Intn(20)) * tick)
			h.sup.Tick(h.ctx, h.now)

			state := h.sup.CurrentState()
			if state < StateDisconnected || state > StateConnected {
				t.Fatalf("seed %d: invalid state %d", seed, state)
			}
			if state == StatePortalWithConnection && !h.portal.active {
				t.Fatalf("seed %d step %d: session without an active portal", seed, step)
			}
			if state == StateConnected {
				if _, ok := h.station.IPAddress(); !ok {
					t.Fatalf("seed %d step %d: connected without a link", seed, step)
				}
			}
			if hadActivity {
				for _, tr := range h.transitions[before:] {
					if tr.Reason == "countdown expired" {
						t.Fatalf("seed %d step %d: countdown expired while portal active", seed, step)
					}
				}
			}
			if len(h.transitions)-before > 1 {
				t.Fatalf("seed %d step %d: %d transitions in one tick", seed, step, len(h.transitions)-before)
			}
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StatePortalActive, "portal_active"},
		{StatePortalWithConnection, "portal_with_connection"},
		{StateConnected, "connected"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
