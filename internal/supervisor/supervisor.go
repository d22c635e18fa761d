package supervisor

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/wifi"
)

// Station joins networks as a client.
type Station interface {
	Connect(ctx context.Context, creds wifi.Credentials) error
	IsLinked(ctx context.Context) bool
	IPAddress() (netip.Addr, bool)
	Disconnect(ctx context.Context) error
}

// Portal is the captive setup portal.
type Portal interface {
	Start(ctx context.Context, apName, apPassword string) error
	Stop(ctx context.Context) error
	Poll(now time.Time)
	Active() bool
	HasActivity() bool
	LastActivity() time.Time
	ResetActivity()
	Address() netip.Addr
}

// CredentialSource reads stored credentials.
type CredentialSource interface {
	LoadCredentials() (wifi.Credentials, bool, error)
}

// Presenter shows status text on the display.
type Presenter interface {
	ShowConnectionStatus(connected bool, message string)
	ShowLoadingMessage(message string)
	ResetDisplayState()
}

// Restarter restarts the appliance.
type Restarter interface {
	Restart() error
}

// Config holds the supervisor's timings and access point identity.
type Config struct {
	// JoinTimeout bounds Connecting before falling back to the portal.
	JoinTimeout time.Duration
	// PortalGrace is the countdown shown before a portal with stored
	// credentials gives way to a join.
	PortalGrace time.Duration
	// InactivityWindow is how long the portal must go unused before a
	// setup session is considered over.
	InactivityWindow time.Duration
	// RestartDelay is the pause between a save and the restart.
	RestartDelay time.Duration
	// PortalRetry is the wait before retrying a portal that failed to start.
	PortalRetry time.Duration
	// LinkCheck limits how often the station link is probed. Zero probes
	// on every tick.
	LinkCheck time.Duration

	APName     string
	APPassword string
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		JoinTimeout:      20 * time.Second,
		PortalGrace:      15 * time.Second,
		InactivityWindow: 5 * time.Minute,
		RestartDelay:     5 * time.Second,
		PortalRetry:      5 * time.Second,
		LinkCheck:        500 * time.Millisecond,
		APName:           "Screenlink-Setup",
	}
}

// Deps are the supervisor's collaborators. All are required.
type Deps struct {
	Station     Station
	Portal      Portal
	Credentials CredentialSource
	Presenter   Presenter
	Restarter   Restarter
}

// Supervisor is the connection state machine. Tick, NotifyCredentialsSaved
// and OnTransition must be called from a single goroutine; RequestPortal,
// CurrentState and Snapshot are safe from any goroutine.
type Supervisor struct {
	cfg  Config
	deps Deps

	state    State
	since    time.Time
	lastTick time.Time
	ticked   bool
	halted   bool

	// creds is only held while a join is in flight.
	creds      wifi.Credentials
	ssid       string
	joinFailed bool

	joinDeadline Deadline
	countdown    Deadline
	portalRetry  Deadline
	restart      Deadline
	shownSecond  int

	linked        bool
	nextLinkCheck time.Time

	portalRequested atomic.Bool
	observers       []func(Transition)
	snap            atomic.Pointer[Snapshot]
}

// New returns a supervisor in StateDisconnected.
func New(cfg Config, deps Deps) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		deps:        deps,
		state:       StateDisconnected,
		shownSecond: -1,
	}
	s.snap.Store(&Snapshot{State: StateDisconnected})
	return s
}

// OnTransition registers fn to be called after every state change.
func (s *Supervisor) OnTransition(fn func(Transition)) {
	s.observers = append(s.observers, fn)
}

// RequestPortal asks for the setup portal. The request is taken up on the
// next tick.
func (s *Supervisor) RequestPortal() {
	s.portalRequested.Store(true)
}

// NotifyCredentialsSaved schedules a restart RestartDelay after now.
func (s *Supervisor) NotifyCredentialsSaved(now time.Time) {
	s.restart.Arm(now, s.cfg.RestartDelay)
	logging.Info("Restart scheduled", zap.Duration("delay", s.cfg.RestartDelay))
}

// CurrentState returns the state as of the last tick.
func (s *Supervisor) CurrentState() State {
	return s.snap.Load().State
}

// Snapshot returns the supervisor's view as of the last tick.
func (s *Supervisor) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Tick advances the machine by at most one transition. Calls with a time
// not after the previous tick do nothing.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) {
	if s.ticked && !now.After(s.lastTick) {
		return
	}
	s.ticked, s.lastTick = true, now
	defer s.publish(now)

	if s.halted {
		return
	}

	s.deps.Portal.Poll(now)

	if s.restart.IsExpired(now) {
		s.restartNow(ctx, now)
		return
	}
	if s.portalRequested.Swap(false) {
		s.handlePortalRequest(ctx, now)
		return
	}

	switch s.state {
	case StateDisconnected:
		s.tickDisconnected(ctx, now)
	case StateConnecting:
		s.tickConnecting(ctx, now)
	case StatePortalActive:
		s.tickPortalActive(ctx, now)
	case StatePortalWithConnection:
		s.tickPortalWithConnection(now)
	case StateConnected:
		s.tickConnected(ctx, now)
	}
}

func (s *Supervisor) tickDisconnected(ctx context.Context, now time.Time) {
	if s.linkUp(ctx, now) {
		if creds, ok := s.loadCredentials(); ok {
			s.ssid = creds.SSID
		}
		s.enterConnected(ctx, now, "link already up")
		return
	}

	creds, ok := s.loadCredentials()
	if !ok {
		s.enterPortal(ctx, now, "no stored credentials")
		return
	}
	s.startJoin(ctx, now, creds, "stored credentials")
}

func (s *Supervisor) tickConnecting(ctx context.Context, now time.Time) {
	if s.joinFailed {
		s.finishJoin()
		s.enterPortal(ctx, now, "join failed")
		return
	}
	if s.linkUp(ctx, now) {
		s.finishJoin()
		s.enterConnected(ctx, now, "link acquired")
		return
	}
	if s.joinDeadline.IsExpired(now) {
		s.finishJoin()
		s.enterPortal(ctx, now, "join timed out")
	}
}

func (s *Supervisor) tickPortalActive(ctx context.Context, now time.Time) {
	p := s.deps.Portal

	if !p.Active() && s.portalRetry.IsExpired(now) {
		s.startPortal(ctx, now)
	}

	// Activity wins over everything else, including an expired countdown.
	if p.HasActivity() {
		s.countdown.Suppress()
		s.transition(now, StatePortalWithConnection, "portal activity")
		s.deps.Presenter.ShowConnectionStatus(false, progressMessage(s.cfg.APName, p.Address()))
		return
	}

	if s.linkUp(ctx, now) {
		s.enterConnected(ctx, now, "link came up")
		return
	}

	if s.countdown.IsExpired(now) {
		if creds, ok := s.loadCredentials(); ok {
			s.startJoin(ctx, now, creds, "countdown expired")
			return
		}
		s.countdown.Disarm()
		if p.Active() {
			s.showPortal(now, true)
		}
		return
	}

	if p.Active() {
		s.showPortal(now, false)
	}
}

func (s *Supervisor) tickPortalWithConnection(now time.Time) {
	p := s.deps.Portal
	if now.Sub(p.LastActivity()) < s.cfg.InactivityWindow {
		return
	}

	p.ResetActivity()
	s.restartCountdown(now)
	s.transition(now, StatePortalActive, "portal inactive")
	s.showPortal(now, true)
}

func (s *Supervisor) tickConnected(ctx context.Context, now time.Time) {
	if s.linkUp(ctx, now) {
		return
	}
	err := wifi.NewLinkLossError(s.ssid)
	logging.Warn("Station link lost", zap.Error(err))
	s.deps.Presenter.ShowConnectionStatus(false, linkLostMessage)
	s.transition(now, StateDisconnected, "link lost")
}

func (s *Supervisor) handlePortalRequest(ctx context.Context, now time.Time) {
	if !s.state.InPortal() {
		if s.state == StateConnecting {
			s.finishJoin()
		}
		s.enterPortal(ctx, now, "setup requested")
		return
	}

	s.deps.Portal.ResetActivity()
	s.restartCountdown(now)
	s.transition(now, StatePortalActive, "setup requested")
	if !s.deps.Portal.Active() {
		s.startPortal(ctx, now)
		return
	}
	s.showPortal(now, true)
}

// restartCountdown re-arms the countdown at its full duration if there is
// anything to join once it runs out.
func (s *Supervisor) restartCountdown(now time.Time) {
	s.shownSecond = -1
	if s.countdown.Armed() {
		s.countdown.Resume(now, s.cfg.PortalGrace)
		return
	}
	if _, ok := s.loadCredentials(); ok {
		s.countdown.Arm(now, s.cfg.PortalGrace)
	}
}

func (s *Supervisor) enterPortal(ctx context.Context, now time.Time, reason string) {
	s.countdown.Disarm()
	s.restartCountdown(now)
	s.transition(now, StatePortalActive, reason)
	s.startPortal(ctx, now)
}

func (s *Supervisor) startPortal(ctx context.Context, now time.Time) bool {
	if err := s.deps.Portal.Start(ctx, s.cfg.APName, s.cfg.APPassword); err != nil {
		logging.Warn("Portal failed to start",
			zap.Error(err),
			zap.Duration("retry_in", s.cfg.PortalRetry),
		)
		s.portalRetry.Arm(now, s.cfg.PortalRetry)
		s.deps.Presenter.ShowConnectionStatus(false, unavailableMessage)
		return false
	}
	s.portalRetry.Disarm()
	s.showPortal(now, true)
	return true
}

// showPortal refreshes the portal screen. The countdown variant is only
// redrawn when its whole-second value changes.
func (s *Supervisor) showPortal(now time.Time, force bool) {
	ip := s.deps.Portal.Address()
	if s.countdown.Armed() && !s.countdown.Suppressed() {
		secs := int(s.countdown.Remaining(now) / time.Second)
		if !force && secs == s.shownSecond {
			return
		}
		s.shownSecond = secs
		s.deps.Presenter.ShowConnectionStatus(false, countdownMessage(s.cfg.APName, ip, secs))
		return
	}
	if force {
		s.deps.Presenter.ShowConnectionStatus(false, waitingMessage(s.cfg.APName, ip))
	}
}

func (s *Supervisor) startJoin(ctx context.Context, now time.Time, creds wifi.Credentials, reason string) {
	s.stopPortal(ctx)
	s.countdown.Disarm()
	s.portalRetry.Disarm()

	s.creds, s.ssid = creds, creds.SSID
	s.transition(now, StateConnecting, reason)
	s.deps.Presenter.ShowConnectionStatus(false, joiningMessage(creds.SSID))

	s.joinDeadline.Arm(now, s.cfg.JoinTimeout)
	if err := s.deps.Station.Connect(ctx, s.creds); err != nil {
		logging.Warn("Join failed", zap.String("ssid", creds.SSID), zap.Error(err))
		s.joinFailed = true
	}
}

func (s *Supervisor) finishJoin() {
	s.joinDeadline.Disarm()
	s.joinFailed = false
	s.creds = wifi.Credentials{}
}

func (s *Supervisor) enterConnected(ctx context.Context, now time.Time, reason string) {
	s.stopPortal(ctx)
	s.countdown.Disarm()
	s.portalRetry.Disarm()

	s.transition(now, StateConnected, reason)
	ip, _ := s.deps.Station.IPAddress()
	s.deps.Presenter.ResetDisplayState()
	s.deps.Presenter.ShowConnectionStatus(true, connectedMessage(s.ssid, ip))
}

func (s *Supervisor) stopPortal(ctx context.Context) {
	if !s.deps.Portal.Active() {
		return
	}
	if err := s.deps.Portal.Stop(ctx); err != nil {
		logging.Warn("Portal did not stop cleanly", zap.Error(err))
	}
}

// restartNow tears everything down and hands over to the restarter. If the
// restart fails the new settings are applied in place instead.
func (s *Supervisor) restartNow(ctx context.Context, now time.Time) {
	s.restart.Disarm()
	logging.Info("Restarting to apply new settings")

	s.deps.Presenter.ShowLoadingMessage(restartingMessage)
	if err := s.deps.Portal.Stop(ctx); err != nil {
		logging.Warn("Portal did not stop cleanly", zap.Error(err))
	}
	if err := s.deps.Station.Disconnect(ctx); err != nil {
		logging.Warn("Station did not disconnect cleanly", zap.Error(err))
	}
	s.finishJoin()
	s.countdown.Disarm()
	s.portalRetry.Disarm()

	if err := s.deps.Restarter.Restart(); err != nil {
		logging.Error("Restart failed, applying settings in place", zap.Error(err))
		s.transition(now, StateDisconnected, "restart failed")
		return
	}
	s.halted = true
	s.transition(now, StateDisconnected, "restarting")
}

func (s *Supervisor) linkUp(ctx context.Context, now time.Time) bool {
	if s.cfg.LinkCheck <= 0 || !now.Before(s.nextLinkCheck) {
		s.linked = s.deps.Station.IsLinked(ctx)
		s.nextLinkCheck = now.Add(s.cfg.LinkCheck)
	}
	return s.linked
}

func (s *Supervisor) loadCredentials() (wifi.Credentials, bool) {
	creds, ok, err := s.deps.Credentials.LoadCredentials()
	if err != nil {
		logging.Warn("Failed to load credentials", zap.Error(err))
		return wifi.Credentials{}, false
	}
	if !ok || !creds.IsValid() {
		return wifi.Credentials{}, false
	}
	return creds, true
}

func (s *Supervisor) transition(now time.Time, to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state, s.since = to, now
	s.nextLinkCheck = time.Time{}

	logging.LogTransition(from.String(), to.String(), reason)
	t := Transition{From: from, To: to, Reason: reason, At: now, SSID: s.ssid}
	for _, fn := range s.observers {
		fn(t)
	}
}

func (s *Supervisor) publish(now time.Time) {
	snap := Snapshot{
		State:          s.state,
		Since:          s.since,
		SSID:           s.ssid,
		RestartPending: s.restart.Armed(),
	}
	if s.state == StateConnected {
		snap.IP, _ = s.deps.Station.IPAddress()
	}
	if s.state.InPortal() {
		snap.Countdown = s.countdown.Remaining(now)
	}
	s.snap.Store(&snap)
}
