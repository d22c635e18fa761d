package radio

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/muurk/screenlink/internal/wifi"
)

// SimNetwork is a network visible to the Simulator.
type SimNetwork struct {
	wifi.Network
	Password string
}

// Simulator is an in-memory Driver. Joins to a known SSID with the right
// password come up after JoinLatency; anything else never links.
type Simulator struct {
	mu sync.Mutex

	networks    []SimNetwork
	joinLatency time.Duration
	dhcpAddr    netip.Addr
	now         func() time.Time

	apUp     bool
	ap       AccessPoint
	joinSSID string
	joinOK   bool
	joinAt   time.Time
	joinAddr netip.Addr
	dropped  bool

	// Failure injection.
	FailStartAP bool
	FailStopAP  bool
	FailJoin    bool

	// Calls records driver calls in order, for tests.
	Calls []string
}

// NewSimulator returns a simulator seeing nets. dhcpAddr is the address
// handed out to DHCP joins.
func NewSimulator(nets []SimNetwork, joinLatency time.Duration, dhcpAddr netip.Addr) *Simulator {
	return &Simulator{
		networks:    nets,
		joinLatency: joinLatency,
		dhcpAddr:    dhcpAddr,
		now:         time.Now,
	}
}

// SetClock replaces the simulator's time source.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var errSimFailure = errors.New("simulated radio failure")

// StartAccessPoint implements Driver.
func (s *Simulator) StartAccessPoint(_ context.Context, ap AccessPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "start_ap")
	if s.FailStartAP {
		return errSimFailure
	}
	s.apUp, s.ap = true, ap
	return nil
}

// StopAccessPoint implements Driver.
func (s *Simulator) StopAccessPoint(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "stop_ap")
	if s.FailStopAP {
		return errSimFailure
	}
	s.apUp = false
	return nil
}

// Join implements Driver.
func (s *Simulator) Join(_ context.Context, req JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "join")
	if s.FailJoin {
		return errSimFailure
	}

	s.joinSSID, s.joinOK, s.dropped = req.SSID, false, false
	s.joinAt = s.now().Add(s.joinLatency)
	s.joinAddr = s.dhcpAddr
	if req.Static != nil {
		s.joinAddr = req.Static.Addr.Addr()
	}
	for _, n := range s.networks {
		if n.SSID == req.SSID && n.Password == req.Password {
			s.joinOK = true
			break
		}
	}
	return nil
}

// Disconnect implements Driver.
func (s *Simulator) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "disconnect")
	s.joinSSID, s.joinOK = "", false
	return nil
}

// Link implements Driver.
func (s *Simulator) Link(context.Context) (wifi.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joinOK || s.dropped || s.now().Before(s.joinAt) {
		return wifi.Link{}, nil
	}
	return wifi.Link{Up: true, Addr: s.joinAddr}, nil
}

// Scan implements Driver.
func (s *Simulator) Scan(context.Context) ([]wifi.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wifi.Network, len(s.networks))
	for i, n := range s.networks {
		out[i] = n.Network
	}
	return out, nil
}

// DropLink simulates the upstream network going away.
func (s *Simulator) DropLink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = true
}

// AccessPointUp reports whether the simulated AP is broadcasting.
func (s *Simulator) AccessPointUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apUp
}
